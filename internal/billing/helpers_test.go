package billing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stretchr/testify/require"

	"github.com/rowanhall/tutorbill/internal/database"
	"github.com/rowanhall/tutorbill/internal/model"
	"github.com/rowanhall/tutorbill/internal/store"
)

const (
	testPeriodStart int64 = 1700000000
	testPeriodEnd   int64 = testPeriodStart + 30*24*3600

	testFirstCents int64 = 1500
	testAddlCents  int64 = 500

	testFirstPriceID = "price_first"
	testAddlPriceID  = "price_addl"
)

// fakeStripe keeps a single in-memory subscription plus its schedule and
// mutates them the way the remote side would.
type fakeStripe struct {
	sub      *stripe.Subscription
	schedule *stripe.SubscriptionSchedule

	getSubErr         error
	createdCustomers  int
	checkoutParams    *stripe.CheckoutSessionParams
	releasedSchedules []string
	itemSeq           int
	schedSeq          int
}

func (f *fakeStripe) CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	f.createdCustomers++
	return &stripe.Customer{ID: fmt.Sprintf("cus_fake_%d", f.createdCustomers)}, nil
}

func (f *fakeStripe) GetSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	if f.getSubErr != nil {
		return nil, f.getSubErr
	}
	if f.sub == nil || f.sub.ID != id {
		return nil, fmt.Errorf("no such subscription: %s", id)
	}
	f.sub.Schedule = f.schedule
	return f.sub, nil
}

func (f *fakeStripe) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	if f.sub == nil || f.sub.ID != id {
		return nil, fmt.Errorf("no such subscription: %s", id)
	}
	if params.CancelAtPeriodEnd != nil {
		f.sub.CancelAtPeriodEnd = *params.CancelAtPeriodEnd
	}
	if params.Metadata != nil {
		f.sub.Metadata = params.Metadata
	}
	for _, it := range params.Items {
		if it.ID != nil {
			for _, existing := range f.sub.Items.Data {
				if existing.ID == *it.ID && it.Quantity != nil {
					existing.Quantity = *it.Quantity
				}
			}
			continue
		}
		if it.Price != nil {
			f.itemSeq++
			qty := int64(1)
			if it.Quantity != nil {
				qty = *it.Quantity
			}
			f.sub.Items.Data = append(f.sub.Items.Data, &stripe.SubscriptionItem{
				ID:                 fmt.Sprintf("si_fake_%d", f.itemSeq),
				Price:              &stripe.Price{ID: *it.Price},
				Quantity:           qty,
				CurrentPeriodStart: testPeriodStart,
				CurrentPeriodEnd:   testPeriodEnd,
			})
		}
	}
	f.sub.Schedule = f.schedule
	return f.sub, nil
}

func (f *fakeStripe) CreateSchedule(ctx context.Context, params *stripe.SubscriptionScheduleParams) (*stripe.SubscriptionSchedule, error) {
	if params.FromSubscription == nil || f.sub == nil || f.sub.ID != *params.FromSubscription {
		return nil, fmt.Errorf("create schedule: unknown subscription")
	}
	f.schedSeq++
	f.schedule = &stripe.SubscriptionSchedule{
		ID:          fmt.Sprintf("sched_fake_%d", f.schedSeq),
		EndBehavior: stripe.SubscriptionScheduleEndBehaviorRelease,
	}
	return f.schedule, nil
}

func (f *fakeStripe) UpdateSchedule(ctx context.Context, id string, params *stripe.SubscriptionScheduleParams) (*stripe.SubscriptionSchedule, error) {
	if f.schedule == nil || f.schedule.ID != id {
		return nil, fmt.Errorf("no such schedule: %s", id)
	}
	if params.EndBehavior != nil {
		f.schedule.EndBehavior = stripe.SubscriptionScheduleEndBehavior(*params.EndBehavior)
	}
	if params.Metadata != nil {
		f.schedule.Metadata = params.Metadata
	}
	if params.Phases != nil {
		var phases []*stripe.SubscriptionSchedulePhase
		for _, p := range params.Phases {
			phase := &stripe.SubscriptionSchedulePhase{Metadata: p.Metadata}
			if p.StartDate != nil {
				phase.StartDate = *p.StartDate
			}
			if p.EndDate != nil {
				phase.EndDate = *p.EndDate
			}
			for _, it := range p.Items {
				qty := int64(1)
				if it.Quantity != nil {
					qty = *it.Quantity
				}
				phase.Items = append(phase.Items, &stripe.SubscriptionSchedulePhaseItem{
					Price:    &stripe.Price{ID: *it.Price},
					Quantity: qty,
				})
			}
			phases = append(phases, phase)
		}
		f.schedule.Phases = phases
	}
	return f.schedule, nil
}

func (f *fakeStripe) ReleaseSchedule(ctx context.Context, id string) (*stripe.SubscriptionSchedule, error) {
	if f.schedule == nil || f.schedule.ID != id {
		return nil, fmt.Errorf("no such schedule: %s", id)
	}
	released := f.schedule
	f.releasedSchedules = append(f.releasedSchedules, id)
	f.schedule = nil
	if f.sub != nil {
		f.sub.Schedule = nil
	}
	return released, nil
}

func (f *fakeStripe) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.checkoutParams = params
	return &stripe.CheckoutSession{ID: "cs_fake", URL: "https://checkout.example/cs_fake"}, nil
}

func (f *fakeStripe) CreatePortalSession(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	return &stripe.BillingPortalSession{ID: "bps_fake", URL: "https://portal.example/bps_fake"}, nil
}

// seedSubscription installs an active subscription for the given children with
// consistent items and metadata.
func (f *fakeStripe) seedSubscription(parentID string, childIDs []string) {
	items := []*stripe.SubscriptionItem{
		{
			ID:                 "si_first",
			Price:              &stripe.Price{ID: testFirstPriceID},
			Quantity:           1,
			CurrentPeriodStart: testPeriodStart,
			CurrentPeriodEnd:   testPeriodEnd,
		},
	}
	if len(childIDs) > 1 {
		items = append(items, &stripe.SubscriptionItem{
			ID:                 "si_addl",
			Price:              &stripe.Price{ID: testAddlPriceID},
			Quantity:           int64(len(childIDs) - 1),
			CurrentPeriodStart: testPeriodStart,
			CurrentPeriodEnd:   testPeriodEnd,
		})
	}
	f.sub = &stripe.Subscription{
		ID:       "sub_test",
		Status:   stripe.SubscriptionStatusActive,
		Metadata: encodeSubscriptionMeta(parentID, childIDs),
		Items:    &stripe.SubscriptionItemList{Data: items},
	}
}

type testEnv struct {
	t         *testing.T
	ctx       context.Context
	fake      *fakeStripe
	plans     *PlanCache
	planStore *store.PlanStore
	ledger    *store.FamilyBillingStore
	users     *store.UserStore
	svc       *Service
	ingestor  *WebhookIngestor
}

func setupEnv(t *testing.T, seedPlan bool) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	planStore := store.NewPlanStore(db)
	ledger := store.NewFamilyBillingStore(db)
	users := store.NewUserStore(db)

	if seedPlan {
		require.NoError(t, planStore.Upsert(&model.Plan{
			Name:                      PremiumPlanName,
			IsActive:                  true,
			ProductID:                 "prod_test",
			PriceIDFirstChild:         testFirstPriceID,
			PriceIDAdditionalChild:    testAddlPriceID,
			PriceFirstChildCents:      testFirstCents,
			PriceAdditionalChildCents: testAddlCents,
		}))
	}

	require.NoError(t, users.CreateParent(&model.Parent{ID: "parent-1", Email: "parent-1@example.com", FullName: "Pat Example"}))
	for _, id := range []string{"child-1", "child-2", "child-3", "child-4"} {
		require.NoError(t, users.CreateChild(&model.Child{ID: id, ParentID: "parent-1", FullName: "Child " + id}))
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fake := &fakeStripe{}
	plans := NewPlanCache(planStore, logger)
	svc := NewService(fake, plans, ledger, users, Config{
		SuccessURL:      "https://app.example/billing/success",
		CancelURL:       "https://app.example/billing/canceled",
		PortalReturnURL: "https://app.example/account",
	}, logger)

	return &testEnv{
		t:         t,
		ctx:       context.Background(),
		fake:      fake,
		plans:     plans,
		planStore: planStore,
		ledger:    ledger,
		users:     users,
		svc:       svc,
		ingestor:  NewWebhookIngestor(plans, ledger, users, logger),
	}
}

func newTestEnv(t *testing.T) *testEnv {
	return setupEnv(t, true)
}

// seedSubscribed puts the family in a fully subscribed state, remote and
// local, for the given children.
func (e *testEnv) seedSubscribed(childIDs ...string) {
	e.t.Helper()
	e.fake.seedSubscription("parent-1", childIDs)

	_, err := e.ledger.Upsert("parent-1", "cus_test")
	require.NoError(e.t, err)
	subID := "sub_test"
	require.NoError(e.t, e.ledger.SetSubscription("parent-1", &subID))
	require.NoError(e.t, e.ledger.SetStatus("parent-1", model.BillingStatusActive))

	amount := testFirstCents + int64(len(childIDs)-1)*testAddlCents
	require.NoError(e.t, e.ledger.UpdateCharge("parent-1", len(childIDs), amount))
	for _, id := range childIDs {
		require.NoError(e.t, e.users.SetChildPremium(id, true))
	}
}

func (e *testEnv) ledgerRow() *model.FamilyBilling {
	e.t.Helper()
	row, err := e.ledger.GetByParentID("parent-1")
	require.NoError(e.t, err)
	require.NotNil(e.t, row)
	return row
}
