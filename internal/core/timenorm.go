package core

import (
	"fmt"
	"strings"
	"time"
)

// TimeKind says how the wall clock of a time value should be read.
type TimeKind int

const (
	// KindUnspecified carries no zone information. It is relabelled as UTC,
	// never shifted.
	KindUnspecified TimeKind = iota
	KindUTC
	KindLocal
)

func (k TimeKind) String() string {
	switch k {
	case KindUTC:
		return "utc"
	case KindLocal:
		return "local"
	}
	return "unspecified"
}

// ZonedTime is a time value together with its zone annotation.
type ZonedTime struct {
	Time time.Time
	Kind TimeKind
}

// NormalizeZoned returns the canonical UTC instant for zt.
//
//   - UTC passes through.
//   - Local reads the wall clock in time.Local and converts with the offset
//     in effect at that instant.
//   - Unspecified keeps the wall clock and relabels it UTC.
func NormalizeZoned(zt ZonedTime) time.Time {
	t := zt.Time
	switch zt.Kind {
	case KindUTC:
		return t.UTC()
	case KindLocal:
		y, mo, d := t.Date()
		h, mi, s := t.Clock()
		return time.Date(y, mo, d, h, mi, s, t.Nanosecond(), time.Local).UTC()
	default:
		y, mo, d := t.Date()
		h, mi, s := t.Clock()
		return time.Date(y, mo, d, h, mi, s, t.Nanosecond(), time.UTC)
	}
}

// TimeKindOf derives the annotation carried by a time.Time's location. Any
// location other than UTC is an explicit zone, so it converts like Local.
func TimeKindOf(t time.Time) TimeKind {
	if t.Location() == time.UTC {
		return KindUTC
	}
	return KindLocal
}

// Normalize converts a zoned time.Time to UTC. Unspecified values can only
// be produced by ParseTime or ZonedTime.
func Normalize(t time.Time) time.Time {
	if t.Location() == time.UTC {
		return t
	}
	return t.UTC()
}

// NormalizeBound normalizes an optional range bound. nil stays nil.
func NormalizeBound(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	n := Normalize(*t)
	return &n
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime reads a client-supplied timestamp. Values with a zone or offset
// convert to UTC; naive values are relabelled UTC without shifting.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NormalizeZoned(ZonedTime{Time: t, Kind: KindUnspecified}), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}
