package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"freightdesk/internal/warehouse/models"
	"freightdesk/internal/warehouse/ports"
	id "freightdesk/pkg/domain"
	"freightdesk/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
	now   time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
}

func (s *InMemoryStoreSuite) newContainer(code string) *models.Container {
	c, err := models.NewContainer(id.NewContainerID(), code, s.now)
	s.Require().NoError(err)
	return c
}

func (s *InMemoryStoreSuite) newInvoice(invoiceID string, items int) *models.Invoice {
	labels := make([]string, items)
	for i := range labels {
		labels[i] = "box"
	}
	inv, err := models.NewInvoice(&models.InvoiceFacts{
		ID:            id.InvoiceID(invoiceID),
		ItemLabels:    labels,
		DeclaredValue: decimal.NewFromInt(100),
		Total:         decimal.NewFromInt(40),
	}, s.now)
	s.Require().NoError(err)
	return inv
}

func (s *InMemoryStoreSuite) insert(c *models.Container) {
	err := s.store.RunInTx(s.ctx, ports.ContainerScope(c.ID), func(st ports.Store) error {
		return st.InsertContainer(s.ctx, c)
	})
	s.Require().NoError(err)
}

func (s *InMemoryStoreSuite) TestCommitMakesWritesVisible() {
	c := s.newContainer("C1")
	s.insert(c)

	got, err := s.store.GetContainer(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal("C1", got.Code)
	s.Equal(models.StateOpen, got.State)
}

func (s *InMemoryStoreSuite) TestErrorDiscardsEveryWrite() {
	c := s.newContainer("C1")
	s.insert(c)
	inv := s.newInvoice("INV1", 2)
	boom := errors.New("boom")

	err := s.store.RunInTx(s.ctx, ports.ContainerScope(c.ID), func(st ports.Store) error {
		cur, err := st.GetContainer(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Require().NoError(inv.AttachTo(c.ID, cur.NextMemberSeq(), s.now))
		s.Require().NoError(st.SaveInvoice(s.ctx, inv))
		s.Require().NoError(st.UpdateContainer(s.ctx, cur))

		members, err := st.ListMembers(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Len(members, 1, "staged writes are visible inside the unit")
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.store.GetInvoice(s.ctx, "INV1")
	s.ErrorIs(err, sentinel.ErrNotFound)
	got, err := s.store.GetContainer(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Zero(got.MemberSeq)
}

func (s *InMemoryStoreSuite) TestDuplicateCodeIsCaseInsensitive() {
	s.insert(s.newContainer("C1"))

	dup := s.newContainer("c1")
	err := s.store.RunInTx(s.ctx, ports.ContainerScope(dup.ID), func(st ports.Store) error {
		return st.InsertContainer(s.ctx, dup)
	})
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
}

func (s *InMemoryStoreSuite) TestConcurrentCreatesWithSameCode() {
	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, taken int
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := s.newContainer("SHARED")
			err := s.store.RunInTx(s.ctx, ports.ContainerScope(c.ID), func(st ports.Store) error {
				return st.InsertContainer(s.ctx, c)
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if errors.Is(err, sentinel.ErrAlreadyUsed) {
				taken++
			}
		}()
	}
	wg.Wait()
	s.Equal(1, ok)
	s.Equal(workers-1, taken)
}

func (s *InMemoryStoreSuite) TestDeletedCodeCanBeReused() {
	c := s.newContainer("C1")
	s.insert(c)
	err := s.store.RunInTx(s.ctx, ports.ContainerScope(c.ID), func(st ports.Store) error {
		return st.DeleteContainer(s.ctx, c.ID)
	})
	s.Require().NoError(err)

	_, err = s.store.GetContainer(s.ctx, c.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.insert(s.newContainer("C1"))
}

func (s *InMemoryStoreSuite) TestSaveInvoiceRejectsStaleVersion() {
	inv := s.newInvoice("INV1", 1)
	err := s.store.RunInTx(s.ctx, ports.InvoiceScope(inv.ID), func(st ports.Store) error {
		return st.SaveInvoice(s.ctx, inv)
	})
	s.Require().NoError(err)
	s.EqualValues(1, inv.Version)

	stale := inv.Clone()
	stale.Version = 0
	err = s.store.RunInTx(s.ctx, ports.InvoiceScope(inv.ID), func(st ports.Store) error {
		return st.SaveInvoice(s.ctx, stale)
	})
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *InMemoryStoreSuite) TestCommitDetectsWriteFromAnotherScope() {
	a, b := s.newContainer("A"), s.newContainer("B")
	s.insert(a)
	s.insert(b)
	inv := s.newInvoice("INV1", 1)
	s.Require().NoError(s.store.RunInTx(s.ctx, ports.InvoiceScope(inv.ID), func(st ports.Store) error {
		return st.SaveInvoice(s.ctx, inv)
	}))

	entered := make(chan struct{})
	proceed := make(chan struct{})
	var slowErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		slowErr = s.store.RunInTx(s.ctx, ports.ContainerScope(a.ID), func(st ports.Store) error {
			cur, err := st.GetInvoice(s.ctx, "INV1")
			if err != nil {
				return err
			}
			close(entered)
			<-proceed
			if err := cur.AttachTo(a.ID, 1, s.now); err != nil {
				return err
			}
			return st.SaveInvoice(s.ctx, cur)
		})
	}()

	<-entered
	err := s.store.RunInTx(s.ctx, ports.ContainerScope(b.ID), func(st ports.Store) error {
		cur, err := st.GetInvoice(s.ctx, "INV1")
		s.Require().NoError(err)
		s.Require().NoError(cur.AttachTo(b.ID, 1, s.now))
		return st.SaveInvoice(s.ctx, cur)
	})
	s.Require().NoError(err)
	close(proceed)
	wg.Wait()

	s.ErrorIs(slowErr, sentinel.ErrConflict)
	got, err := s.store.GetInvoice(s.ctx, "INV1")
	s.Require().NoError(err)
	s.True(got.IsMemberOf(b.ID))
}

func (s *InMemoryStoreSuite) TestListMembersOrderedBySequence() {
	c := s.newContainer("C1")
	s.insert(c)
	err := s.store.RunInTx(s.ctx, ports.ContainerScope(c.ID), func(st ports.Store) error {
		cur, err := st.GetContainer(s.ctx, c.ID)
		if err != nil {
			return err
		}
		for _, name := range []string{"Z", "A", "M"} {
			inv := s.newInvoice(name, 1)
			if err := inv.AttachTo(c.ID, cur.NextMemberSeq(), s.now); err != nil {
				return err
			}
			if err := st.SaveInvoice(s.ctx, inv); err != nil {
				return err
			}
		}
		return st.UpdateContainer(s.ctx, cur)
	})
	s.Require().NoError(err)

	members, err := s.store.ListMembers(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Require().Len(members, 3)
	s.Equal(id.InvoiceID("Z"), members[0].ID)
	s.Equal(id.InvoiceID("A"), members[1].ID)
	s.Equal(id.InvoiceID("M"), members[2].ID)
}

func (s *InMemoryStoreSuite) TestListContainersFiltersByState() {
	open := s.newContainer("OPEN")
	s.insert(open)
	worked := s.newContainer("DONE")
	worked.State = models.StateWorked
	s.insert(worked)

	active, err := s.store.ListContainers(s.ctx, models.ActiveStates)
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal("OPEN", active[0].Code)

	history, err := s.store.ListContainers(s.ctx, models.HistoryStates)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal("DONE", history[0].Code)
}

func (s *InMemoryStoreSuite) TestReadsReturnCopies() {
	c := s.newContainer("C1")
	s.insert(c)
	got, err := s.store.GetContainer(s.ctx, c.ID)
	s.Require().NoError(err)
	got.State = models.StateWorked

	again, err := s.store.GetContainer(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.StateOpen, again.State)
}

func (s *InMemoryStoreSuite) TestCancelledWaiterDoesNotRun() {
	c := s.newContainer("C1")
	s.insert(c)
	scope := ports.ContainerScope(c.ID)

	holding := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.store.RunInTx(s.ctx, scope, func(ports.Store) error {
			close(holding)
			<-done
			return nil
		})
	}()
	<-holding

	ctx, cancel := context.WithTimeout(s.ctx, 20*time.Millisecond)
	defer cancel()
	ran := false
	err := s.store.RunInTx(ctx, scope, func(ports.Store) error {
		ran = true
		return nil
	})
	close(done)
	s.ErrorIs(err, context.DeadlineExceeded)
	s.False(ran)
}
