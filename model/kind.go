// SPDX-License-Identifier: ice License 1.0

package model

// Class is the retention/routing class a Kind is assigned to by ClassifyKind.
type Class int

const (
	ClassInvalid Class = iota
	ClassRegular
	ClassEphemeral
	ClassReplaceable
	ClassAddressable
	ClassSyncable
	ClassPurge
)

func (c Class) String() string {
	switch c {
	case ClassRegular:
		return "regular"
	case ClassEphemeral:
		return "ephemeral"
	case ClassReplaceable:
		return "replaceable"
	case ClassAddressable:
		return "addressable"
	case ClassSyncable:
		return "syncable"
	case ClassPurge:
		return "purge"
	default:
		return "invalid"
	}
}

const (
	purgeKind = 49999

	syncableLow  = 40000
	syncableHigh = 49998

	addressableLow  = 30000
	addressableHigh = 39999

	ephemeralLow  = 20000
	ephemeralHigh = 29999

	replaceableRangeLow  = 10000
	replaceableRangeHigh = 19999

	regularRangeLow  = 1000
	regularRangeHigh = 9999

	regularGapLow  = 4
	regularGapHigh = 44
)

// ClassifyKind maps an integer kind to its retention class, evaluated in the
// precedence order laid out by the kind classification table: Replaceable,
// Ephemeral, Addressable, Purge, Syncable, Regular, Invalid.
func ClassifyKind(kind int) Class {
	switch {
	case kind == 0 || kind == 3 || (kind >= replaceableRangeLow && kind <= replaceableRangeHigh):
		return ClassReplaceable
	case kind >= ephemeralLow && kind <= ephemeralHigh:
		return ClassEphemeral
	case kind >= addressableLow && kind <= addressableHigh:
		return ClassAddressable
	case kind == purgeKind:
		return ClassPurge
	case kind >= syncableLow && kind <= syncableHigh:
		return ClassSyncable
	case kind == 1 || kind == 2 || (kind >= regularGapLow && kind <= regularGapHigh) || (kind >= regularRangeLow && kind <= regularRangeHigh):
		return ClassRegular
	default:
		return ClassInvalid
	}
}
