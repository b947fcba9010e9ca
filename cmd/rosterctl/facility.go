package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	appfacility "github.com/rosterlink/backend/internal/application/facility"
	"github.com/rosterlink/backend/internal/domain/integration"
	"github.com/rosterlink/backend/internal/domain/settings"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// secretEnv supplies the facility password to link without a flag
const secretEnv = "ROSTERLINK_FACILITY_SECRET"

// authenticator is the part of the facility service a session refresh needs
type authenticator interface {
	Authenticate(ctx context.Context, input appfacility.AuthenticateInput) (*integration.AuthResult, error)
}

// credentialStore is the part of the local state a session refresh needs
type credentialStore interface {
	Credential(ctx context.Context, key string) (*integration.FacilityCredential, error)
	SaveCredential(ctx context.Context, cred integration.FacilityCredential) error
}

// localStore is the local state an import reads credentials from and
// writes its results to
type localStore interface {
	credentialStore
	settings.StateStore
}

type activityImporter interface {
	authenticator
	ImportActivities(ctx context.Context, input appfacility.ImportActivitiesInput) (*appfacility.ActivitiesResult, error)
}

type orderImporter interface {
	authenticator
	ImportOrders(ctx context.Context, input appfacility.ImportOrdersInput) (*appfacility.OrdersResult, error)
}

type facilityFlags struct {
	id          string
	displayName string
	baseURL     string
}

func (f *facilityFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.id, "facility", "", "vendor facility identifier")
	cmd.Flags().StringVar(&f.displayName, "name", "", "facility display name")
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "override the platform base URL")
	_ = cmd.MarkFlagRequired("facility")
}

func (f *facilityFlags) context() integration.FacilityContext {
	return integration.FacilityContext{FacilityID: f.id, DisplayName: f.displayName, BaseURL: f.baseURL}
}

func platformArg(args []string) (integration.PlatformCode, error) {
	return integration.ParsePlatformCode(args[0])
}

// -----------------------------------------------------------------------------
// link / unlink / linked
// -----------------------------------------------------------------------------

func linkCmd(a *app) *cobra.Command {
	var (
		ff     facilityFlags
		email  string
		secret string
	)
	cmd := &cobra.Command{
		Use:   "link PLATFORM",
		Short: "Sign in to a facility account and store the credential locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			platform, err := platformArg(args)
			if err != nil {
				return err
			}
			if secret == "" {
				secret = os.Getenv(secretEnv)
			}
			if secret == "" {
				return fmt.Errorf("a facility password is required (--secret or %s)", secretEnv)
			}
			svc, err := a.facilities()
			if err != nil {
				return err
			}
			store, err := a.state(cmd.Context())
			if err != nil {
				return err
			}

			fc := ff.context()
			result, err := svc.Authenticate(cmd.Context(), appfacility.AuthenticateInput{
				Platform: platform, Facility: fc, Email: email, Secret: secret,
			})
			if err != nil {
				return err
			}
			cred := result.Credential(platform, fc, email, secret, time.Now().UTC())
			if err := store.SaveCredential(cmd.Context(), cred); err != nil {
				return err
			}
			if err := seedRoster(cmd.Context(), store, result.RosterMembers); err != nil {
				return err
			}
			a.log.Info("Facility linked", zap.String("key", cred.Key()), zap.Int("roster", len(result.RosterMembers)))

			cred.SecretCredential = ""
			cred.SessionToken = ""
			return a.print(cmd.OutOrStdout(), cred, func(w io.Writer) {
				fmt.Fprintf(w, "Linked %s (%s) as %s\n", cred.FacilityName, cred.Key(), cred.PrincipalEmail)
				for _, m := range result.RosterMembers {
					fmt.Fprintf(w, "  roster: %s\t%s\n", m.ID, m.DisplayName)
				}
			})
		},
	}
	ff.bind(cmd)
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&secret, "secret", "", "account password (prefer "+secretEnv+")")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func unlinkCmd(a *app) *cobra.Command {
	var ff facilityFlags
	cmd := &cobra.Command{
		Use:   "unlink PLATFORM",
		Short: "Disconnect a facility and delete its stored secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			platform, err := platformArg(args)
			if err != nil {
				return err
			}
			store, err := a.state(cmd.Context())
			if err != nil {
				return err
			}
			key := integration.CredentialKey(platform, ff.id)
			if err := store.RemoveCredential(cmd.Context(), key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unlinked %s\n", key)
			return nil
		},
	}
	ff.bind(cmd)
	return cmd
}

func linkedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "linked",
		Short: "List linked facilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.state(cmd.Context())
			if err != nil {
				return err
			}
			creds, err := store.Credentials()
			if err != nil {
				return err
			}
			for i := range creds {
				creds[i].SessionToken = ""
			}
			return a.print(cmd.OutOrStdout(), creds, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "KEY\tFACILITY\tEMAIL\tLINKED")
				for _, c := range creds {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Key(), c.FacilityName, c.PrincipalEmail, c.LinkedAt.Format(time.RFC3339))
				}
				_ = tw.Flush()
			})
		},
	}
}

// -----------------------------------------------------------------------------
// activities / orders / match / catalog
// -----------------------------------------------------------------------------

func activitiesCmd(a *app) *cobra.Command {
	var (
		ff     facilityFlags
		owners []string
	)
	cmd := &cobra.Command{
		Use:   "activities PLATFORM",
		Short: "Import registered activities from a linked facility",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			platform, err := platformArg(args)
			if err != nil {
				return err
			}
			svc, err := a.facilities()
			if err != nil {
				return err
			}
			store, err := a.state(cmd.Context())
			if err != nil {
				return err
			}

			result, err := importActivities(cmd.Context(), svc, store, appfacility.ImportActivitiesInput{
				Platform: platform, Facility: ff.context(), OwnerIDs: owners,
			})
			if err != nil {
				return err
			}

			return a.print(cmd.OutOrStdout(), result, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "WHEN\tACTIVITY\tOWNER\tLOCATION\tPRICE")
				for _, group := range []struct {
					label string
					list  []integration.Activity
				}{{"upcoming", result.Upcoming}, {"past", result.Past}} {
					for _, act := range group.list {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s %s\n", group.label, act.Name, act.OwnerName, act.LocationName, act.Price.StringFixed(2), act.Currency)
					}
				}
				_ = tw.Flush()
			})
		},
	}
	ff.bind(cmd)
	cmd.Flags().StringSliceVar(&owners, "owner", nil, "import only these roster member ids")
	return cmd
}

func ordersCmd(a *app) *cobra.Command {
	var ff facilityFlags
	cmd := &cobra.Command{
		Use:   "orders PLATFORM",
		Short: "Import order history and match it to roster profiles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			platform, err := platformArg(args)
			if err != nil {
				return err
			}
			svc, err := a.facilities()
			if err != nil {
				return err
			}
			store, err := a.state(cmd.Context())
			if err != nil {
				return err
			}

			result, err := importOrders(cmd.Context(), svc, store, platform, ff.context())
			if err != nil {
				return err
			}

			return a.print(cmd.OutOrStdout(), result, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ORDER\tITEM\tBILLED TO\tPROFILE\tPRICE")
				for _, o := range append(append([]integration.Order{}, result.Matched...), result.Unmatched...) {
					profile := "-"
					if o.MatchedProfileID != nil {
						profile = *o.MatchedProfileID
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s %s\n", o.OrderID, o.ItemName, o.BillingName, profile, o.Price.StringFixed(2), o.Currency)
				}
				_ = tw.Flush()
				for _, e := range result.Errors {
					fmt.Fprintf(w, "failed: %s (%s)\n", e.Ref, e.Kind)
				}
			})
		},
	}
	ff.bind(cmd)
	return cmd
}

func matchCmd(a *app) *cobra.Command {
	var (
		ff      facilityFlags
		orderID string
		profile string
		unmatch bool
	)
	cmd := &cobra.Command{
		Use:   "match PLATFORM",
		Short: "Correct which roster profile an imported order belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			platform, err := platformArg(args)
			if err != nil {
				return err
			}
			if (profile == "") == !unmatch {
				return errors.New("exactly one of --profile or --clear is required")
			}
			store, err := a.state(cmd.Context())
			if err != nil {
				return err
			}
			order, err := overrideOrderMatch(cmd.Context(), store, platform, ff.id, orderID, profile)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), order, func(w io.Writer) {
				if order.MatchedProfileID == nil {
					fmt.Fprintf(w, "Order %s is now unmatched\n", order.OrderID)
					return
				}
				fmt.Fprintf(w, "Order %s now belongs to %s\n", order.OrderID, *order.MatchedProfileID)
			})
		},
	}
	ff.bind(cmd)
	cmd.Flags().StringVar(&orderID, "order", "", "imported order id")
	cmd.Flags().StringVar(&profile, "profile", "", "roster member id the order belongs to")
	cmd.Flags().BoolVar(&unmatch, "clear", false, "mark the order as belonging to no profile")
	_ = cmd.MarkFlagRequired("order")
	return cmd
}

func catalogCmd(a *app) *cobra.Command {
	var ff facilityFlags
	cmd := &cobra.Command{
		Use:   "catalog PLATFORM",
		Short: "Read the public session catalog of a facility",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			platform, err := platformArg(args)
			if err != nil {
				return err
			}
			svc, err := a.facilities()
			if err != nil {
				return err
			}
			sessions, err := svc.ReadPublicCatalog(cmd.Context(), appfacility.CatalogInput{Platform: platform, Facility: ff.context()})
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), sessions, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SESSION\tDATES\tLOCATION\tPRICE")
				for _, s := range sessions {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\n", s.Name, s.Dates, s.Location, s.Price.StringFixed(2), s.Currency)
				}
				_ = tw.Flush()
			})
		},
	}
	ff.bind(cmd)
	return cmd
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

// withSession runs fn with the stored session token. When the vendor reports
// an expired session and the secret is available locally, it signs in again
// once, stores the fresh token and retries.
func withSession(ctx context.Context, auth authenticator, store credentialStore, platform integration.PlatformCode, fc integration.FacilityContext, fn func(token string) error) error {
	cred, err := store.Credential(ctx, integration.CredentialKey(platform, fc.FacilityID))
	if err != nil {
		return fmt.Errorf("facility %s is not linked: %w", fc.FacilityID, err)
	}

	err = fn(cred.SessionToken)
	if integration.KindOf(err) != integration.ErrorKindNeedsReauth || cred.SecretCredential == "" {
		return err
	}

	result, authErr := auth.Authenticate(ctx, appfacility.AuthenticateInput{
		Platform: platform, Facility: fc, Email: cred.PrincipalEmail, Secret: cred.SecretCredential,
	})
	if authErr != nil {
		return errors.Join(err, authErr)
	}
	refreshed := *cred
	refreshed.SessionToken = result.SessionToken
	if err := store.SaveCredential(ctx, refreshed); err != nil {
		return err
	}
	return fn(result.SessionToken)
}

// seedRoster stores the facility roster when the device has none yet
func seedRoster(ctx context.Context, store settings.StateStore, members []integration.RosterMember) error {
	if len(members) == 0 {
		return nil
	}
	var current []integration.RosterMember
	if _, err := store.Snapshot().Get(settings.FieldRoster, &current); err != nil {
		return err
	}
	if len(current) > 0 {
		return nil
	}
	fields := settings.SyncDocument{}
	if err := fields.Set(settings.FieldRoster, members); err != nil {
		return err
	}
	return store.Update(ctx, fields, false)
}

// importActivities imports with the stored session and records the result
// under the facility's history entry. A failed import leaves the stored
// activities as they were.
func importActivities(ctx context.Context, svc activityImporter, store localStore, input appfacility.ImportActivitiesInput) (*appfacility.ActivitiesResult, error) {
	var result *appfacility.ActivitiesResult
	err := withSession(ctx, svc, store, input.Platform, input.Facility, func(token string) error {
		in := input
		in.SessionToken = token
		var err error
		result, err = svc.ImportActivities(ctx, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	history, err := readHistory(store)
	if err != nil {
		return nil, err
	}
	history = integration.ReplaceActivities(history, input.Platform, input.Facility.FacilityID, input.OwnerIDs, result.Activities, result.ImportedAt)
	if err := saveHistory(ctx, store, history, &result.ImportedAt); err != nil {
		return nil, err
	}
	return result, nil
}

// importOrders imports order history matched against the local roster. The
// stored orders keep any match the user corrected, and the result reflects
// those corrections.
func importOrders(ctx context.Context, svc orderImporter, store localStore, platform integration.PlatformCode, fc integration.FacilityContext) (*appfacility.OrdersResult, error) {
	var roster []integration.RosterMember
	if _, err := store.Snapshot().Get(settings.FieldRoster, &roster); err != nil {
		return nil, fmt.Errorf("failed to read roster: %w", err)
	}

	var result *appfacility.OrdersResult
	err := withSession(ctx, svc, store, platform, fc, func(token string) error {
		var err error
		result, err = svc.ImportOrders(ctx, appfacility.ImportOrdersInput{
			Platform: platform, Facility: fc, SessionToken: token, KnownProfiles: roster,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	history, err := readHistory(store)
	if err != nil {
		return nil, err
	}
	orders := append(append([]integration.Order{}, result.Matched...), result.Unmatched...)
	history = integration.ReplaceOrders(history, platform, fc.FacilityID, orders, result.ImportedAt)
	if err := saveHistory(ctx, store, history, &result.ImportedAt); err != nil {
		return nil, err
	}

	result.Matched, result.Unmatched = nil, nil
	for _, o := range historyFor(history, platform, fc.FacilityID).Orders {
		if o.MatchedProfileID != nil {
			result.Matched = append(result.Matched, o)
		} else {
			result.Unmatched = append(result.Unmatched, o)
		}
	}
	return result, nil
}

// overrideOrderMatch pins an imported order to a roster profile, or to none
// when profileID is empty
func overrideOrderMatch(ctx context.Context, store settings.StateStore, platform integration.PlatformCode, facilityID, orderID, profileID string) (*integration.Order, error) {
	if profileID != "" {
		var roster []integration.RosterMember
		if _, err := store.Snapshot().Get(settings.FieldRoster, &roster); err != nil {
			return nil, fmt.Errorf("failed to read roster: %w", err)
		}
		if !slices.ContainsFunc(roster, func(m integration.RosterMember) bool { return m.ID == profileID }) {
			return nil, fmt.Errorf("profile %q is not on the roster", profileID)
		}
	}

	history, err := readHistory(store)
	if err != nil {
		return nil, err
	}
	history, err = integration.OverrideMatch(history, platform, facilityID, orderID, profileID)
	if err != nil {
		return nil, fmt.Errorf("order %s of %s: %w", orderID, integration.CredentialKey(platform, facilityID), err)
	}
	if err := saveHistory(ctx, store, history, nil); err != nil {
		return nil, err
	}
	for _, o := range historyFor(history, platform, facilityID).Orders {
		if o.OrderID == orderID {
			return &o, nil
		}
	}
	return nil, integration.ErrOrderNotImported
}

func readHistory(store settings.StateStore) ([]integration.FacilityHistory, error) {
	var history []integration.FacilityHistory
	if _, err := store.Snapshot().Get(settings.FieldHistory, &history); err != nil {
		return nil, fmt.Errorf("failed to read import history: %w", err)
	}
	return history, nil
}

func historyFor(history []integration.FacilityHistory, platform integration.PlatformCode, facilityID string) integration.FacilityHistory {
	key := integration.CredentialKey(platform, facilityID)
	for _, h := range history {
		if h.Key == key {
			return h
		}
	}
	return integration.FacilityHistory{}
}

// saveHistory writes the history field, and lastImportAt when an import
// produced it, in one local update
func saveHistory(ctx context.Context, store settings.StateStore, history []integration.FacilityHistory, importedAt *time.Time) error {
	fields := settings.SyncDocument{}
	if err := fields.Set(settings.FieldHistory, history); err != nil {
		return err
	}
	if importedAt != nil {
		if err := fields.Set(settings.FieldLastImportAt, *importedAt); err != nil {
			return err
		}
	}
	return store.Update(ctx, fields, false)
}
