package containers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"freightdesk/internal/warehouse/models"
	"freightdesk/internal/warehouse/ports"
	"freightdesk/internal/warehouse/store"
	id "freightdesk/pkg/domain"
	dErrors "freightdesk/pkg/domain-errors"
)

type MachineSuite struct {
	suite.Suite
	ctx     context.Context
	store   *store.InMemoryStore
	machine *Machine
	now     time.Time
	cid     id.ContainerID
}

func TestMachineSuite(t *testing.T) {
	suite.Run(t, new(MachineSuite))
}

func (s *MachineSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemory()
	s.machine = New()
	s.now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s.cid = id.NewContainerID()
	s.run(func(st ports.Store) error {
		_, err := s.machine.Create(s.ctx, st, s.cid, "C1", s.now)
		return err
	})
}

func (s *MachineSuite) run(fn func(st ports.Store) error) {
	s.Require().NoError(s.try(fn))
}

func (s *MachineSuite) try(fn func(st ports.Store) error) error {
	return s.store.RunInTx(s.ctx, ports.ContainerScope(s.cid), fn)
}

// addInvoice attaches an invoice with items entries, the first marked of them scanned.
func (s *MachineSuite) addInvoice(invoiceID string, items, marked int) {
	labels := make([]string, items)
	s.run(func(st ports.Store) error {
		inv, err := models.NewInvoice(&models.InvoiceFacts{ID: id.InvoiceID(invoiceID), ItemLabels: labels}, s.now)
		if err != nil {
			return err
		}
		c, err := st.GetContainer(s.ctx, s.cid)
		if err != nil {
			return err
		}
		if err := inv.AttachTo(s.cid, c.NextMemberSeq(), s.now); err != nil {
			return err
		}
		for i := range marked {
			if _, err := inv.SetItemMark(i, true, s.now); err != nil {
				return err
			}
		}
		if err := st.SaveInvoice(s.ctx, inv); err != nil {
			return err
		}
		return st.UpdateContainer(s.ctx, c)
	})
}

func (s *MachineSuite) state() models.ContainerState {
	c, err := s.store.GetContainer(s.ctx, s.cid)
	s.Require().NoError(err)
	return c.State
}

func (s *MachineSuite) advanceTo(target models.ContainerState) {
	steps := []func(st ports.Store) error{
		func(st ports.Store) error { _, err := s.machine.Close(s.ctx, st, s.cid, true, s.now); return err },
		func(st ports.Store) error { _, err := s.machine.Depart(s.ctx, st, s.cid, s.now); return err },
		func(st ports.Store) error {
			_, err := s.machine.ConfirmReceipt(s.ctx, st, s.cid, "", s.now)
			return err
		},
		func(st ports.Store) error {
			_, err := s.machine.MarkWorked(s.ctx, st, s.cid, true, s.now)
			return err
		},
	}
	order := []models.ContainerState{models.StateClosed, models.StateInTransit, models.StateReceived, models.StateWorked}
	for i, st := range order {
		s.run(steps[i])
		if st == target {
			return
		}
	}
}

func (s *MachineSuite) TestCloseGateListsExactlyTheIncompleteInvoices() {
	s.addInvoice("INV2", 2, 2)
	s.addInvoice("INV3", 2, 1)
	s.addInvoice("INV4", 3, 0)

	err := s.try(func(st ports.Store) error {
		_, err := s.machine.Close(s.ctx, st, s.cid, false, s.now)
		return err
	})
	s.Require().True(dErrors.HasCode(err, dErrors.CodeIncompleteInvoices))
	de, ok := dErrors.As(err)
	s.Require().True(ok)
	s.Equal([]models.IncompleteInvoice{
		{InvoiceID: "INV3", ItemsMarked: 1, ItemsTotal: 2},
		{InvoiceID: "INV4", ItemsMarked: 0, ItemsTotal: 3},
	}, de.Details)
	s.Equal(models.StateOpen, s.state())
}

func (s *MachineSuite) TestForcedCloseTagsIncompleteInvoices() {
	s.addInvoice("INV2", 1, 1)
	s.addInvoice("INV3", 2, 1)

	var tr *Transition
	s.run(func(st ports.Store) error {
		var err error
		tr, err = s.machine.Close(s.ctx, st, s.cid, true, s.now)
		return err
	})
	s.Equal([]id.InvoiceID{"INV3"}, tr.Tagged)
	s.True(tr.Container.ForceClosed)
	s.Equal(models.StateClosed, s.state())

	inv3, err := s.store.GetInvoice(s.ctx, "INV3")
	s.Require().NoError(err)
	s.True(inv3.IncompleteAtClose)
	inv2, err := s.store.GetInvoice(s.ctx, "INV2")
	s.Require().NoError(err)
	s.False(inv2.IncompleteAtClose)
}

func (s *MachineSuite) TestCloseOfCompleteContainerIsNotForced() {
	s.addInvoice("INV1", 1, 1)
	s.run(func(st ports.Store) error {
		tr, err := s.machine.Close(s.ctx, st, s.cid, true, s.now)
		if err == nil {
			s.False(tr.Container.ForceClosed)
		}
		return err
	})
}

func (s *MachineSuite) TestPrecheckCloseDoesNotWrite() {
	s.addInvoice("INV3", 2, 1)
	var pre *models.ClosePrecheck
	s.run(func(st ports.Store) error {
		var err error
		pre, err = s.machine.PrecheckClose(s.ctx, st, s.cid)
		return err
	})
	s.False(pre.Ready)
	s.Len(pre.Incomplete, 1)
	s.Equal(models.StateOpen, s.state())
}

func (s *MachineSuite) TestDepartIsIdempotent() {
	s.advanceTo(models.StateInTransit)
	s.run(func(st ports.Store) error {
		tr, err := s.machine.Depart(s.ctx, st, s.cid, s.now.Add(time.Hour))
		if err == nil {
			s.False(tr.Changed)
			s.Equal(s.now, *tr.Container.DepartedAt)
		}
		return err
	})
}

func (s *MachineSuite) TestDepartFromOpenFails() {
	err := s.try(func(st ports.Store) error {
		_, err := s.machine.Depart(s.ctx, st, s.cid, s.now)
		return err
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *MachineSuite) TestConfirmReceiptRecordsNotesOnce() {
	s.advanceTo(models.StateInTransit)
	s.run(func(st ports.Store) error {
		_, err := s.machine.ConfirmReceipt(s.ctx, st, s.cid, " two pallets wet ", s.now)
		return err
	})
	s.run(func(st ports.Store) error {
		tr, err := s.machine.ConfirmReceipt(s.ctx, st, s.cid, "again", s.now)
		if err == nil {
			s.False(tr.Changed)
		}
		return err
	})
	c, err := s.store.GetContainer(s.ctx, s.cid)
	s.Require().NoError(err)
	s.Equal("two pallets wet", c.ReceiptNotes)
	s.NotNil(c.ReceivedAt)
}

func (s *MachineSuite) TestMarkWorkedRequiresRoutesOrAcknowledgement() {
	s.addInvoice("INV1", 1, 1)
	s.advanceTo(models.StateReceived)

	err := s.try(func(st ports.Store) error {
		_, err := s.machine.MarkWorked(s.ctx, st, s.cid, false, s.now)
		return err
	})
	s.Require().True(dErrors.HasCode(err, dErrors.CodeUnroutedInvoices))
	s.Equal(models.StateReceived, s.state())

	s.run(func(st ports.Store) error {
		tr, err := s.machine.MarkWorked(s.ctx, st, s.cid, true, s.now)
		if err == nil {
			s.True(tr.Container.UnroutedAcknowledged)
		}
		return err
	})
	s.Equal(models.StateWorked, s.state())

	s.run(func(st ports.Store) error {
		tr, err := s.machine.MarkWorked(s.ctx, st, s.cid, false, s.now)
		if err == nil {
			s.False(tr.Changed)
		}
		return err
	})
}

func (s *MachineSuite) TestMarkWorkedWithAllRoutedNeedsNoAcknowledgement() {
	s.addInvoice("INV1", 1, 1)
	s.advanceTo(models.StateReceived)
	s.run(func(st ports.Store) error {
		inv, err := st.GetInvoice(s.ctx, "INV1")
		if err != nil {
			return err
		}
		if err := inv.AssignRoute("R-1", s.now); err != nil {
			return err
		}
		return st.SaveInvoice(s.ctx, inv)
	})

	var pre *models.WorkedPrecheck
	s.run(func(st ports.Store) error {
		var err error
		pre, err = s.machine.PrecheckWorked(s.ctx, st, s.cid)
		return err
	})
	s.True(pre.Ready)

	s.run(func(st ports.Store) error {
		_, err := s.machine.MarkWorked(s.ctx, st, s.cid, false, s.now)
		return err
	})
	s.Equal(models.StateWorked, s.state())
}

func (s *MachineSuite) TestDeleteReleasesMembers() {
	s.addInvoice("INV1", 2, 2)
	var tr *Transition
	s.run(func(st ports.Store) error {
		var err error
		tr, err = s.machine.Delete(s.ctx, st, s.cid, s.now)
		return err
	})
	s.Equal([]id.InvoiceID{"INV1"}, tr.Released)

	inv, err := s.store.GetInvoice(s.ctx, "INV1")
	s.Require().NoError(err)
	s.False(inv.IsAssigned())
	s.Zero(inv.ItemsMarked())
	_, err = s.store.GetContainer(s.ctx, s.cid)
	s.Error(err)
}

func (s *MachineSuite) TestDeleteAfterCloseFails() {
	s.advanceTo(models.StateClosed)
	err := s.try(func(st ports.Store) error {
		_, err := s.machine.Delete(s.ctx, st, s.cid, s.now)
		return err
	})
	s.True(dErrors.HasCode(err, dErrors.CodeNotOpen))
}

func (s *MachineSuite) TestStatsAreDerivedFromMembers() {
	s.addInvoice("INV1", 3, 3)
	s.addInvoice("INV2", 2, 1)
	var stats models.ContainerStats
	s.run(func(st ports.Store) error {
		var err error
		stats, err = s.machine.Stats(s.ctx, st, s.cid)
		return err
	})
	s.Equal(2, stats.TotalInvoices)
	s.Equal(1, stats.CompleteInvoices)
	s.Equal(1, stats.IncompleteInvoices)
	s.Equal(5, stats.TotalItems)
	s.Equal(4, stats.ItemsMarked)
}
