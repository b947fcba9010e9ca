package testutil

import (
	"fmt"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rosterlink/backend/internal/domain/integration"
	"github.com/rosterlink/backend/internal/domain/settings"
	"github.com/stretchr/testify/require"
)

// Fixtures produces reproducible domain values from a seeded faker.
type Fixtures struct {
	faker *gofakeit.Faker
}

// NewFixtures returns fixtures seeded with seed
func NewFixtures(seed uint64) *Fixtures {
	return &Fixtures{faker: gofakeit.New(seed)}
}

// Roster returns n roster members with distinct ids
func (f *Fixtures) Roster(n int) []integration.RosterMember {
	out := make([]integration.RosterMember, n)
	for i := range out {
		out[i] = integration.RosterMember{
			ID:          fmt.Sprintf("member-%d", i+1),
			DisplayName: f.faker.FirstName() + " " + f.faker.LastName(),
		}
	}
	return out
}

// Credential returns a linked credential carrying both ephemeral fields
func (f *Fixtures) Credential(platform integration.PlatformCode) integration.FacilityCredential {
	return integration.FacilityCredential{
		Platform:         platform,
		FacilityID:       f.faker.Username(),
		FacilityName:     f.faker.Company(),
		PrincipalEmail:   f.faker.Email(),
		SecretCredential: f.faker.Password(true, true, true, false, false, 16),
		SessionToken:     "session=" + f.faker.UUID(),
		LinkedAt:         f.faker.PastDate().UTC(),
	}
}

// Document returns a settings document using the default field names
func (f *Fixtures) Document(t *testing.T) settings.SyncDocument {
	t.Helper()

	cred := f.Credential(integration.PlatformCodeResourceAPI)
	doc := settings.SyncDocument{}
	require.NoError(t, doc.Set(settings.FieldTheme, f.faker.RandomString([]string{"light", "dark", "system"})))
	require.NoError(t, doc.Set(settings.FieldFavorites, []string{f.faker.UUID(), f.faker.UUID()}))
	require.NoError(t, doc.Set(settings.FieldRoster, f.Roster(2)))
	require.NoError(t, doc.Set(settings.FieldFacilityCredentials, map[string]integration.FacilityCredential{cred.Key(): cred}))
	require.NoError(t, doc.Set(settings.FieldDeviceID, f.faker.UUID()))
	return doc
}
