package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestReplaceActivities(t *testing.T) {
	first := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)

	history := ReplaceActivities(nil, PlatformCodeStorefront, "west", nil,
		[]Activity{{ID: "w-1", OwnerID: "p-1"}}, first)
	history = ReplaceActivities(history, PlatformCodeResourceAPI, "riverside", nil,
		[]Activity{{ID: "r-1", OwnerID: "p-1"}, {ID: "r-2", OwnerID: "p-2"}}, first)

	tests := []struct {
		name   string
		owners []string
		fresh  []Activity
		want   []string
	}{
		{"full import replaces the facility set", nil, []Activity{{ID: "r-3", OwnerID: "p-1"}}, []string{"r-3"}},
		{"owner import keeps other owners", []string{"p-1"}, []Activity{{ID: "r-3", OwnerID: "p-1"}}, []string{"r-2", "r-3"}},
		{"empty full import clears the set", nil, nil, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReplaceActivities(history, PlatformCodeResourceAPI, "riverside", tt.owners, tt.fresh, second)

			require.Len(t, got, 2)
			assert.Equal(t, "RESOURCE_API:riverside", got[0].Key)
			ids := []string{}
			for _, act := range got[0].Activities {
				ids = append(ids, act.ID)
			}
			assert.Equal(t, tt.want, ids)
			assert.Equal(t, second, *got[0].ActivitiesAt)

			assert.Equal(t, "STOREFRONT:west", got[1].Key)
			assert.Equal(t, []Activity{{ID: "w-1", OwnerID: "p-1"}}, got[1].Activities)
			assert.Equal(t, first, *got[1].ActivitiesAt)

			assert.Len(t, history[0].Activities, 2, "input history is not modified")
		})
	}
}

func TestOverrideMatch(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	imported := []Order{
		{OrderID: "1001", BillingName: "Jane Doe", MatchedProfileID: strPtr("p-jane")},
		{OrderID: "1002", BillingName: "J. Doe"},
	}

	t.Run("correction survives a re-import", func(t *testing.T) {
		history := ReplaceOrders(nil, PlatformCodeStorefront, "west", imported, at)

		history, err := OverrideMatch(history, PlatformCodeStorefront, "west", "1002", "p-jill")
		require.NoError(t, err)
		history, err = OverrideMatch(history, PlatformCodeStorefront, "west", "1001", "")
		require.NoError(t, err)

		assert.Nil(t, history[0].Orders[0].MatchedProfileID)
		assert.Equal(t, "p-jill", *history[0].Orders[1].MatchedProfileID)

		again := ReplaceOrders(history, PlatformCodeStorefront, "west", imported, at.Add(time.Hour))
		require.Len(t, again, 1)
		assert.Nil(t, again[0].Orders[0].MatchedProfileID)
		assert.Equal(t, "p-jill", *again[0].Orders[1].MatchedProfileID)
		assert.Equal(t, map[string]string{"1001": "", "1002": "p-jill"}, again[0].MatchOverrides)
		assert.Equal(t, "p-jane", *imported[0].MatchedProfileID, "imported orders are not modified")
	})

	t.Run("unknown order", func(t *testing.T) {
		history := ReplaceOrders(nil, PlatformCodeStorefront, "west", imported, at)

		_, err := OverrideMatch(history, PlatformCodeStorefront, "west", "9999", "p-jane")
		assert.ErrorIs(t, err, ErrOrderNotImported)

		_, err = OverrideMatch(history, PlatformCodeResourceAPI, "west", "1001", "p-jane")
		assert.ErrorIs(t, err, ErrOrderNotImported)
	})
}
