package lifecycle

import (
	"fmt"

	"staging-studio-backend/internal/apperrors"
)

// Built-in plan identifiers.
const (
	PlanFurnitureRemove = "furniture_remove"
	PlanFurnitureAdd    = "furniture_add"
	PlanFurnitureBoth   = "furniture_both"
	PlanFloorPlan       = "floor_plan_cg"
)

// PlanKind decides how many deliverables an order needs and how it is paid.
type PlanKind int

const (
	// PlanSingle needs one result and is paid up front.
	PlanSingle PlanKind = iota
	// PlanDual needs a removal result and a staged result.
	PlanDual
	// PlanQuote is priced by staff after the order is placed.
	PlanQuote
)

func KindOf(planID string) PlanKind {
	switch planID {
	case PlanFurnitureBoth:
		return PlanDual
	case PlanFloorPlan:
		return PlanQuote
	default:
		return PlanSingle
	}
}

func (k PlanKind) String() string {
	switch k {
	case PlanDual:
		return "dual"
	case PlanQuote:
		return "quote"
	default:
		return "single"
	}
}

// Slot names a deliverable position on an order.
type Slot string

const (
	SlotRemove Slot = "remove"
	SlotAdd    Slot = "add"
	SlotSingle Slot = "single"
)

// Slots lists the deliverable slots a plan kind accepts.
func (k PlanKind) Slots() []Slot {
	if k == PlanDual {
		return []Slot{SlotRemove, SlotAdd}
	}
	return []Slot{SlotSingle}
}

// ParseSlot validates a slot name against the plan kind.
func ParseSlot(kind PlanKind, raw string) (Slot, error) {
	for _, s := range kind.Slots() {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", apperrors.Clone(apperrors.ErrValidation,
		fmt.Sprintf("slot %q is not valid for a %s plan", raw, kind))
}
