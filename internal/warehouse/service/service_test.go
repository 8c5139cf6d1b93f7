package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"freightdesk/internal/warehouse/catalog"
	"freightdesk/internal/warehouse/metrics"
	"freightdesk/internal/warehouse/models"
	"freightdesk/internal/warehouse/store"
	id "freightdesk/pkg/domain"
	dErrors "freightdesk/pkg/domain-errors"
	"freightdesk/pkg/platform/audit"
	"freightdesk/pkg/platform/audit/publisher"
	auditmemory "freightdesk/pkg/platform/audit/store/memory"
	"freightdesk/pkg/requestcontext"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type ServiceSuite struct {
	suite.Suite
	ctx        context.Context
	store      *store.InMemoryStore
	catalog    *catalog.Static
	auditStore *auditmemory.InMemoryStore
	metrics    *metrics.Metrics
	service    *Service
	now        time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithRequestID(context.Background(), "req-test")
	s.now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s.store = store.NewInMemory()
	s.catalog = catalog.NewStatic(
		facts("INV1", "50.00", "12.50", "tv", "remote", "manual"),
		facts("INV2", "20.00", "5.00", "chair"),
		facts("INV3", "30.00", "8.00", "box", "lamp"),
	)
	s.auditStore = auditmemory.NewInMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.service = New(s.store, s.store, s.catalog,
		WithLogger(logger),
		WithClock(fixedClock{t: s.now}),
		WithMetrics(s.metrics),
		WithAuditPublisher(publisher.NewPublisher(s.auditStore, publisher.WithLogger(logger))),
	)
}

func facts(invoiceID, declared, total string, labels ...string) models.InvoiceFacts {
	return models.InvoiceFacts{
		ID:            id.InvoiceID(invoiceID),
		ItemLabels:    labels,
		DeclaredValue: decimal.RequireFromString(declared),
		Total:         decimal.RequireFromString(total),
	}
}

func (s *ServiceSuite) requireCode(err error, code dErrors.Code) *dErrors.Error {
	s.T().Helper()
	s.Require().Error(err)
	de, ok := dErrors.As(err)
	s.Require().True(ok, "expected a domain error, got %v", err)
	s.Require().Equal(code, de.Code, de.Message)
	return de
}

func (s *ServiceSuite) createContainer(code string) id.ContainerID {
	view, err := s.service.CreateContainer(s.ctx, models.CreateContainerRequest{Code: code})
	s.Require().NoError(err)
	return view.ID
}

func (s *ServiceSuite) add(cid id.ContainerID, invoiceID string) {
	_, err := s.service.AddInvoice(s.ctx, cid, id.InvoiceID(invoiceID))
	s.Require().NoError(err)
}

func (s *ServiceSuite) mark(invoiceID string, indexes ...int) *models.InvoiceView {
	var view *models.InvoiceView
	for _, i := range indexes {
		var err error
		view, err = s.service.MarkItem(s.ctx, id.InvoiceID(invoiceID), models.MarkItemRequest{ItemIndex: i, Marked: true})
		s.Require().NoError(err)
	}
	return view
}

// receive drives an open container to received.
func (s *ServiceSuite) receive(cid id.ContainerID, force bool) {
	_, err := s.service.CloseContainer(s.ctx, cid, models.CloseContainerRequest{Force: force})
	s.Require().NoError(err)
	_, err = s.service.DepartContainer(s.ctx, cid)
	s.Require().NoError(err)
	_, err = s.service.ConfirmReceipt(s.ctx, cid, models.ConfirmReceiptRequest{Notes: "arrived"})
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestScenarioA_CloseAfterAllItemsMarked() {
	cid := s.createContainer("C1")
	s.add(cid, "INV1")

	view := s.mark("INV1", 0, 1)
	s.Equal(models.CompletenessIncomplete, view.Completeness)
	s.Equal(2, view.ItemsMarked)

	view = s.mark("INV1", 2)
	s.Equal(models.CompletenessComplete, view.Completeness)

	closed, err := s.service.CloseContainer(s.ctx, cid, models.CloseContainerRequest{})
	s.Require().NoError(err)
	s.Equal(models.StateClosed, closed.State)
	s.False(closed.ForceClosed)
	s.Equal(1, closed.Stats.CompleteInvoices)
}

func (s *ServiceSuite) TestScenarioB_ForceCloseTagsIncomplete() {
	cid := s.createContainer("C2")
	s.add(cid, "INV2")
	s.add(cid, "INV3")
	s.mark("INV2", 0)
	s.mark("INV3", 0)

	_, err := s.service.CloseContainer(s.ctx, cid, models.CloseContainerRequest{})
	de := s.requireCode(err, dErrors.CodeIncompleteInvoices)
	s.Equal([]models.IncompleteInvoice{{InvoiceID: "INV3", ItemsMarked: 1, ItemsTotal: 2}}, de.Details)

	view, err := s.service.GetContainer(s.ctx, cid)
	s.Require().NoError(err)
	s.Equal(models.StateOpen, view.State)

	closed, err := s.service.CloseContainer(s.ctx, cid, models.CloseContainerRequest{Force: true})
	s.Require().NoError(err)
	s.Equal(models.StateClosed, closed.State)
	s.True(closed.ForceClosed)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ForcedCloses))

	inv, err := s.service.GetInvoiceDetail(s.ctx, "INV3")
	s.Require().NoError(err)
	s.True(inv.IncompleteAtClose)
	inv, err = s.service.GetInvoiceDetail(s.ctx, "INV2")
	s.Require().NoError(err)
	s.False(inv.IncompleteAtClose)
}

func (s *ServiceSuite) TestScenarioC_RouteLifecycle() {
	cid := s.createContainer("C1")
	s.add(cid, "INV1")
	s.mark("INV1", 0, 1, 2)
	s.receive(cid, false)

	view, err := s.service.AssignRoute(s.ctx, "INV1", models.RouteRequest{RouteID: "R-CAPITAL"})
	s.Require().NoError(err)
	s.Equal(id.RouteID("R-CAPITAL"), view.Route.RouteID)

	view, err = s.service.ReassignRoute(s.ctx, "INV1", models.RouteRequest{RouteID: "R-SUR", Reason: "traffic"})
	s.Require().NoError(err)
	s.Equal(id.RouteID("R-SUR"), view.Route.RouteID)
	s.Equal("traffic", view.Route.ReassignReason)

	view, err = s.service.UnassignRoute(s.ctx, "INV1", models.RouteRequest{Reason: "customer pickup"})
	s.Require().NoError(err)
	s.Nil(view.Route)
	s.Equal("customer pickup", view.RemovalReason)

	view, err = s.service.UnassignRoute(s.ctx, "INV1", models.RouteRequest{})
	s.Require().NoError(err)
	s.Nil(view.Route)
	s.Len(view.RouteLog, 3)
}

func (s *ServiceSuite) TestScenarioD_PaymentLock() {
	paid := models.PaymentPaid
	view, err := s.service.SetPayment(s.ctx, "INV1", models.SetPaymentRequest{Status: &paid})
	s.Require().NoError(err)
	s.True(view.Payment.AmountPaid.Equal(decimal.RequireFromString("12.50")))
	s.True(view.PendingBalance.IsZero())

	partial := models.PaymentPartial
	ten := decimal.NewFromInt(10)
	_, err = s.service.SetPayment(s.ctx, "INV1", models.SetPaymentRequest{Status: &partial, AmountPaid: &ten})
	s.requireCode(err, dErrors.CodePaymentLocked)

	view, err = s.service.SetPayment(s.ctx, "INV1", models.SetPaymentRequest{Note: "receipt mailed"})
	s.Require().NoError(err)
	s.Len(view.Payment.Notes, 1)
}

func (s *ServiceSuite) TestMarkItemIdempotent() {
	cid := s.createContainer("C1")
	s.add(cid, "INV1")

	first := s.mark("INV1", 1)
	second := s.mark("INV1", 1)
	s.Equal(1, first.ItemsMarked)
	s.Equal(1, second.ItemsMarked)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.ItemsMarked))

	view, err := s.service.MarkItem(s.ctx, "INV1", models.MarkItemRequest{ItemIndex: 1, Marked: false})
	s.Require().NoError(err)
	s.Equal(0, view.ItemsMarked)
	s.Equal(models.CompletenessPending, view.Completeness)
}

func (s *ServiceSuite) TestCompletenessRevertsWhenUnmarked() {
	cid := s.createContainer("C1")
	s.add(cid, "INV3")
	s.Equal(models.CompletenessComplete, s.mark("INV3", 0, 1).Completeness)

	view, err := s.service.MarkItem(s.ctx, "INV3", models.MarkItemRequest{ItemIndex: 0, Marked: false})
	s.Require().NoError(err)
	s.Equal(models.CompletenessIncomplete, view.Completeness)
}

func (s *ServiceSuite) TestMarkItemRejections() {
	s.Run("unknown item", func() {
		cid := s.createContainer("C-unknown")
		s.add(cid, "INV2")
		_, err := s.service.MarkItem(s.ctx, "INV2", models.MarkItemRequest{ItemIndex: 5, Marked: true})
		s.requireCode(err, dErrors.CodeUnknownItem)
	})

	s.Run("unassigned invoice", func() {
		_, err := s.service.SetPayment(s.ctx, "INV3", models.SetPaymentRequest{Note: "materialize"})
		s.Require().NoError(err)
		_, err = s.service.MarkItem(s.ctx, "INV3", models.MarkItemRequest{ItemIndex: 0, Marked: true})
		s.requireCode(err, dErrors.CodeNotAMember)
	})

	s.Run("never seen invoice", func() {
		_, err := s.service.MarkItem(s.ctx, "INV-404", models.MarkItemRequest{ItemIndex: 0, Marked: true})
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("closed container", func() {
		cid := s.createContainer("C-closed")
		s.add(cid, "INV1")
		_, err := s.service.CloseContainer(s.ctx, cid, models.CloseContainerRequest{Force: true})
		s.Require().NoError(err)
		_, err = s.service.MarkItem(s.ctx, "INV1", models.MarkItemRequest{ItemIndex: 0, Marked: true})
		s.requireCode(err, dErrors.CodeContainerClosedForEditing)
	})
}

func (s *ServiceSuite) TestExclusiveMembership() {
	c1 := s.createContainer("C1")
	c2 := s.createContainer("C2")
	s.add(c1, "INV1")

	_, err := s.service.AddInvoice(s.ctx, c2, "INV1")
	s.requireCode(err, dErrors.CodeAlreadyAssigned)
	_, err = s.service.AddInvoice(s.ctx, c1, "INV1")
	s.requireCode(err, dErrors.CodeAlreadyAssigned)

	_, err = s.service.RemoveInvoice(s.ctx, c2, "INV1")
	s.requireCode(err, dErrors.CodeNotAMember)

	view, err := s.service.RemoveInvoice(s.ctx, c1, "INV1")
	s.Require().NoError(err)
	s.Nil(view.ContainerID)

	s.add(c2, "INV1")
	v1, err := s.service.GetContainer(s.ctx, c1)
	s.Require().NoError(err)
	v2, err := s.service.GetContainer(s.ctx, c2)
	s.Require().NoError(err)
	s.Equal(0, v1.Stats.TotalInvoices)
	s.Equal(1, v2.Stats.TotalInvoices)
}

func (s *ServiceSuite) TestAddInvoiceRequiresCatalogAndOpenContainer() {
	cid := s.createContainer("C1")
	_, err := s.service.AddInvoice(s.ctx, cid, "INV-404")
	s.requireCode(err, dErrors.CodeNotFound)

	_, err = s.service.AddInvoice(s.ctx, id.NewContainerID(), "INV1")
	s.requireCode(err, dErrors.CodeNotFound)

	_, err = s.service.CloseContainer(s.ctx, cid, models.CloseContainerRequest{})
	s.Require().NoError(err)
	_, err = s.service.AddInvoice(s.ctx, cid, "INV1")
	s.requireCode(err, dErrors.CodeNotOpen)
}

func (s *ServiceSuite) TestRemoveResetsMarksAndReaddRefreshesFacts() {
	cid := s.createContainer("C1")
	s.add(cid, "INV1")
	s.mark("INV1", 0, 1)

	view, err := s.service.RemoveInvoice(s.ctx, cid, "INV1")
	s.Require().NoError(err)
	s.Equal(0, view.ItemsMarked)

	s.catalog.Put(facts("INV1", "60.00", "15.00", "tv", "remote", "manual", "stand"))
	view, err = s.service.AddInvoice(s.ctx, cid, "INV1")
	s.Require().NoError(err)
	s.Equal(4, view.ItemsTotal)
	s.Equal(0, view.ItemsMarked)
	s.True(view.Total.Equal(decimal.RequireFromString("15.00")))
}

func (s *ServiceSuite) TestPaidInvoiceFollowsCatalogTotalOnAdd() {
	paid := models.PaymentPaid
	cid := s.createContainer("C1")

	// paid before it was ever containerized
	_, err := s.service.SetPayment(s.ctx, "INV2", models.SetPaymentRequest{Status: &paid})
	s.Require().NoError(err)
	s.catalog.Put(facts("INV2", "20.00", "9.00", "chair"))
	view, err := s.service.AddInvoice(s.ctx, cid, "INV2")
	s.Require().NoError(err)
	s.Equal(models.PaymentPaid, view.Payment.Status)
	s.True(view.Payment.AmountPaid.Equal(view.Total), "amount %s total %s", view.Payment.AmountPaid, view.Total)
	s.True(view.PendingBalance.IsZero())

	// removed and re-added after the total changed again
	_, err = s.service.RemoveInvoice(s.ctx, cid, "INV2")
	s.Require().NoError(err)
	s.catalog.Put(facts("INV2", "20.00", "11.50", "chair"))
	view, err = s.service.AddInvoice(s.ctx, cid, "INV2")
	s.Require().NoError(err)
	s.True(view.Payment.AmountPaid.Equal(decimal.RequireFromString("11.50")))
	s.True(view.PendingBalance.IsZero())

	amount := decimal.RequireFromString("11.50")
	view, err = s.service.SetPayment(s.ctx, "INV2", models.SetPaymentRequest{Status: &paid, AmountPaid: &amount, Note: "restated"})
	s.Require().NoError(err, "restating the paid record is not a locked change")
	s.Len(view.Payment.Notes, 1)
}

func (s *ServiceSuite) TestSubCentPaymentIsRejected() {
	partial := models.PaymentPartial
	amount := decimal.RequireFromString("1.999")
	_, err := s.service.SetPayment(s.ctx, "INV1", models.SetPaymentRequest{Status: &partial, AmountPaid: &amount})
	s.requireCode(err, dErrors.CodeValidation)
}

func (s *ServiceSuite) TestDeleteReleasesMembers() {
	cid := s.createContainer("C1")
	s.add(cid, "INV1")
	s.add(cid, "INV2")
	s.mark("INV1", 0)

	released, err := s.service.DeleteContainer(s.ctx, cid)
	s.Require().NoError(err)
	s.ElementsMatch([]id.InvoiceID{"INV1", "INV2"}, released)

	_, err = s.service.GetContainer(s.ctx, cid)
	s.requireCode(err, dErrors.CodeNotFound)

	inv, err := s.service.GetInvoiceDetail(s.ctx, "INV1")
	s.Require().NoError(err)
	s.Nil(inv.ContainerID)
	s.Equal(0, inv.ItemsMarked)

	again := s.createContainer("C1")
	s.NotEqual(cid, again)
}

func (s *ServiceSuite) TestDeleteRequiresOpen() {
	cid := s.createContainer("C1")
	_, err := s.service.CloseContainer(s.ctx, cid, models.CloseContainerRequest{})
	s.Require().NoError(err)
	_, err = s.service.DeleteContainer(s.ctx, cid)
	s.requireCode(err, dErrors.CodeNotOpen)
}

func (s *ServiceSuite) TestDuplicateCode() {
	s.createContainer("C1")
	_, err := s.service.CreateContainer(s.ctx, models.CreateContainerRequest{Code: " c1 "})
	s.requireCode(err, dErrors.CodeDuplicateCode)

	_, err = s.service.CreateContainer(s.ctx, models.CreateContainerRequest{Code: "   "})
	s.requireCode(err, dErrors.CodeValidation)
}

func (s *ServiceSuite) TestLifecycleIdempotenceAndOrdering() {
	cid := s.createContainer("C1")

	_, err := s.service.DepartContainer(s.ctx, cid)
	s.requireCode(err, dErrors.CodeInvalidState)
	_, err = s.service.ConfirmReceipt(s.ctx, cid, models.ConfirmReceiptRequest{})
	s.requireCode(err, dErrors.CodeInvalidState)
	_, err = s.service.MarkWorked(s.ctx, cid, models.MarkWorkedRequest{})
	s.requireCode(err, dErrors.CodeInvalidState)

	_, err = s.service.CloseContainer(s.ctx, cid, models.CloseContainerRequest{})
	s.Require().NoError(err)
	_, err = s.service.CloseContainer(s.ctx, cid, models.CloseContainerRequest{})
	s.requireCode(err, dErrors.CodeNotOpen)

	_, err = s.service.DepartContainer(s.ctx, cid)
	s.Require().NoError(err)
	view, err := s.service.DepartContainer(s.ctx, cid)
	s.Require().NoError(err)
	s.Equal(models.StateInTransit, view.State)

	_, err = s.service.ConfirmReceipt(s.ctx, cid, models.ConfirmReceiptRequest{Notes: "dock 4"})
	s.Require().NoError(err)
	view, err = s.service.ConfirmReceipt(s.ctx, cid, models.ConfirmReceiptRequest{Notes: "again"})
	s.Require().NoError(err)
	s.Equal("dock 4", view.ReceiptNotes)

	departed, err := s.auditStore.ListByContainer(s.ctx, cid.String())
	s.Require().NoError(err)
	actions := make([]string, 0, len(departed))
	for _, e := range departed {
		actions = append(actions, e.Action)
	}
	s.Equal([]string{
		string(audit.EventContainerCreated),
		string(audit.EventContainerClosed),
		string(audit.EventContainerDeparted),
		string(audit.EventContainerReceived),
	}, actions)
}

func (s *ServiceSuite) TestMarkWorkedRequiresRoutesOrAck() {
	cid := s.createContainer("C1")
	s.add(cid, "INV1")
	s.add(cid, "INV2")
	s.mark("INV1", 0, 1, 2)
	s.mark("INV2", 0)
	s.receive(cid, false)
	_, err := s.service.AssignRoute(s.ctx, "INV1", models.RouteRequest{RouteID: "R-1"})
	s.Require().NoError(err)

	pre, err := s.service.PrecheckWorked(s.ctx, cid)
	s.Require().NoError(err)
	s.False(pre.Ready)
	s.Equal([]models.UnroutedInvoice{{InvoiceID: "INV2", Completeness: models.CompletenessComplete}}, pre.Unrouted)

	_, err = s.service.MarkWorked(s.ctx, cid, models.MarkWorkedRequest{})
	s.requireCode(err, dErrors.CodeUnroutedInvoices)

	view, err := s.service.MarkWorked(s.ctx, cid, models.MarkWorkedRequest{AcknowledgeUnrouted: true})
	s.Require().NoError(err)
	s.Equal(models.StateWorked, view.State)
	s.True(view.UnroutedAcknowledged)

	active, err := s.service.ListActiveContainers(s.ctx)
	s.Require().NoError(err)
	s.Empty(active)
	history, err := s.service.ListHistoryContainers(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal(2, history[0].Stats.TotalInvoices)
	s.Nil(history[0].Invoices)

	_, err = s.service.MarkWorked(s.ctx, cid, models.MarkWorkedRequest{})
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestPrecheckCloseDoesNotMutate() {
	cid := s.createContainer("C1")
	s.add(cid, "INV2")
	s.add(cid, "INV3")

	pre, err := s.service.PrecheckClose(s.ctx, cid)
	s.Require().NoError(err)
	s.False(pre.Ready)
	s.Len(pre.Incomplete, 2)

	view, err := s.service.GetContainer(s.ctx, cid)
	s.Require().NoError(err)
	s.Equal(models.StateOpen, view.State)
}

func (s *ServiceSuite) TestRouteEligibility() {
	cid := s.createContainer("C1")
	s.add(cid, "INV1")
	s.add(cid, "INV2")
	s.mark("INV1", 0, 1, 2)

	_, err := s.service.AssignRoute(s.ctx, "INV1", models.RouteRequest{RouteID: "R-1"})
	s.requireCode(err, dErrors.CodeRouteNotEligible)

	s.receive(cid, true)

	_, err = s.service.AssignRoute(s.ctx, "INV2", models.RouteRequest{RouteID: "R-1"})
	s.requireCode(err, dErrors.CodeRouteNotEligible)

	_, err = s.service.ReassignRoute(s.ctx, "INV1", models.RouteRequest{RouteID: "R-2", Reason: "late"})
	s.requireCode(err, dErrors.CodeNoRouteAssigned)

	_, err = s.service.AssignRoute(s.ctx, "INV1", models.RouteRequest{RouteID: "  "})
	s.requireCode(err, dErrors.CodeInvalidInput)

	_, err = s.service.AssignRoute(s.ctx, "INV1", models.RouteRequest{RouteID: "R-1"})
	s.Require().NoError(err)
	_, err = s.service.ReassignRoute(s.ctx, "INV1", models.RouteRequest{RouteID: "R-2"})
	s.requireCode(err, dErrors.CodeValidation)
}

func (s *ServiceSuite) TestDamageAndIncompletenessAfterReceipt() {
	cid := s.createContainer("C1")
	s.add(cid, "INV1")
	s.mark("INV1", 0, 1, 2)

	_, err := s.service.MarkDamaged(s.ctx, "INV1", models.MarkDamagedRequest{ItemIndex: 0, Damaged: true, Notes: "dent"})
	s.requireCode(err, dErrors.CodeNotReceived)
	_, err = s.service.ReportIncomplete(s.ctx, "INV1", models.ReportIncompleteRequest{Reason: "short"})
	s.requireCode(err, dErrors.CodeNotReceived)

	s.receive(cid, false)

	_, err = s.service.MarkDamaged(s.ctx, "INV1", models.MarkDamagedRequest{ItemIndex: 0, Damaged: true})
	s.requireCode(err, dErrors.CodeNotesRequired)

	view, err := s.service.MarkDamaged(s.ctx, "INV1", models.MarkDamagedRequest{ItemIndex: 0, Damaged: true, Notes: " cracked screen "})
	s.Require().NoError(err)
	s.True(view.Items[0].Damaged)
	s.Equal("cracked screen", view.Items[0].DamageNotes)
	s.Equal(3, view.ItemsMarked)

	_, err = s.service.ReportIncomplete(s.ctx, "INV1", models.ReportIncompleteRequest{})
	s.requireCode(err, dErrors.CodeValidation)

	view, err = s.service.ReportIncomplete(s.ctx, "INV1", models.ReportIncompleteRequest{
		Reason:       "remote missing",
		MissingItems: []string{"remote", " remote "},
	})
	s.Require().NoError(err)
	s.Require().Len(view.Reports, 1)
	s.Equal([]string{"remote"}, view.Reports[0].MissingItems)
	s.Equal(models.CompletenessComplete, view.Completeness)
}

func (s *ServiceSuite) TestGetInvoiceDetailFromCatalog() {
	view, err := s.service.GetInvoiceDetail(s.ctx, "INV2")
	s.Require().NoError(err)
	s.Nil(view.ContainerID)
	s.Equal(1, view.ItemsTotal)
	s.Equal(models.PaymentPending, view.Payment.Status)

	_, err = s.service.GetInvoiceDetail(s.ctx, "INV-404")
	s.requireCode(err, dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestContainerStatsRecomputedOnRead() {
	cid := s.createContainer("C1")
	s.add(cid, "INV1")
	s.add(cid, "INV2")
	s.mark("INV2", 0)
	s.mark("INV1", 0)

	view, err := s.service.GetContainer(s.ctx, cid)
	s.Require().NoError(err)
	s.Equal(2, view.Stats.TotalInvoices)
	s.Equal(4, view.Stats.TotalItems)
	s.Equal(2, view.Stats.ItemsMarked)
	s.Equal(1, view.Stats.CompleteInvoices)
	s.True(view.Stats.DeclaredValueTotal.Equal(decimal.RequireFromString("70.00")))
	s.Require().Len(view.Invoices, 2)
	s.Equal(id.InvoiceID("INV1"), view.Invoices[0].ID)
}

func (s *ServiceSuite) TestAuditEventsCarryRequestContext() {
	ctx := requestcontext.WithOperatorID(s.ctx, "op-7")
	view, err := s.service.CreateContainer(ctx, models.CreateContainerRequest{Code: "C9"})
	s.Require().NoError(err)
	_, err = s.service.AddInvoice(ctx, view.ID, "INV2")
	s.Require().NoError(err)

	events, err := s.auditStore.ListByInvoice(s.ctx, "INV2")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	e := events[0]
	s.Equal(string(audit.EventInvoiceAdded), e.Action)
	s.Equal(audit.CategoryOperations, e.Category)
	s.Equal(view.ID.String(), e.ContainerID)
	s.Equal("req-test", e.RequestID)
	s.Equal("op-7", e.ActorID)
	s.Equal("1", e.Attributes["items"])
}

func (s *ServiceSuite) TestRequestTimeOverridesClock() {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(s.ctx, at)
	view, err := s.service.CreateContainer(ctx, models.CreateContainerRequest{Code: "C1"})
	s.Require().NoError(err)
	s.Equal(at, view.CreatedAt)
}
