package models

import (
	"strconv"
	"strings"
	"time"

	dErrors "freightdesk/pkg/domain-errors"
)

// Item is one declared line of an invoice, keyed by its position.
//
// Invariants:
//   - Index is stable for the lifetime of the invoice
//   - DamageNotes is non-empty whenever Damaged is true
type Item struct {
	Index       int        `json:"index"`
	Label       string     `json:"label,omitempty"`
	Marked      bool       `json:"marked"`
	MarkedAt    *time.Time `json:"marked_at,omitempty"`
	Damaged     bool       `json:"damaged"`
	DamageNotes string     `json:"damage_notes,omitempty"`
	DamagedAt   *time.Time `json:"damaged_at,omitempty"`
}

func (inv *Invoice) item(index int) (*Item, error) {
	if index < 0 || index >= len(inv.Items) {
		return nil, dErrors.New(dErrors.CodeUnknownItem,
			"item "+strconv.Itoa(index)+" is out of range for invoice "+inv.ID.String()+
				" ("+strconv.Itoa(len(inv.Items))+" items)")
	}
	return &inv.Items[index], nil
}

// SetItemMark sets the scan mark of one item. Setting the current value again
// is a no-op and reports changed=false.
func (inv *Invoice) SetItemMark(index int, marked bool, now time.Time) (changed bool, err error) {
	it, err := inv.item(index)
	if err != nil {
		return false, err
	}
	if it.Marked == marked {
		return false, nil
	}
	it.Marked = marked
	if marked {
		it.MarkedAt = &now
	} else {
		it.MarkedAt = nil
	}
	inv.UpdatedAt = now
	return true, nil
}

// SetItemDamage flags or clears damage on one item. Flagging requires notes;
// clearing drops them.
func (inv *Invoice) SetItemDamage(index int, damaged bool, notes string, now time.Time) (changed bool, err error) {
	it, err := inv.item(index)
	if err != nil {
		return false, err
	}
	notes = strings.TrimSpace(notes)
	if damaged && notes == "" {
		return false, dErrors.New(dErrors.CodeNotesRequired, "damage notes are required when flagging an item as damaged")
	}
	if !damaged {
		if !it.Damaged {
			return false, nil
		}
		it.Damaged = false
		it.DamageNotes = ""
		it.DamagedAt = nil
		inv.UpdatedAt = now
		return true, nil
	}
	if it.Damaged && it.DamageNotes == notes {
		return false, nil
	}
	it.Damaged = true
	it.DamageNotes = notes
	it.DamagedAt = &now
	inv.UpdatedAt = now
	return true, nil
}
