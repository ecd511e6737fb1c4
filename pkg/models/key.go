package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/HatiCode/lagfit/pkg/features"
)

var (
	nestedKeyRe  = regexp.MustCompile(`^AR(\d+)(?:I(\d+))?MA(\d+)$`)
	cascadeKeyRe = regexp.MustCompile(`^((AR|MA)\d+)+$`)
	factorRe     = regexp.MustCompile(`(AR|MA)(\d+)`)
)

// DecodeNestedKey parses "AR<p>I<d>MA<q>" or "AR<p>MA<q>". The integration
// marker, when present, is replaced by d so that a key always refers to the
// model's own integration order.
func DecodeNestedKey(key string, d int) (NestedSpec, error) {
	m := nestedKeyRe.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(key)))
	if m == nil {
		return NestedSpec{}, fmt.Errorf("%w: %q", ErrBrokenKey, key)
	}
	p, err := strconv.Atoi(m[1])
	if err != nil {
		return NestedSpec{}, fmt.Errorf("%w: %q: %v", ErrBrokenKey, key, err)
	}
	q, err := strconv.Atoi(m[3])
	if err != nil {
		return NestedSpec{}, fmt.Errorf("%w: %q: %v", ErrBrokenKey, key, err)
	}
	if p < 1 || q < 2 {
		return NestedSpec{}, fmt.Errorf("%w: %q: lags out of range", ErrBrokenKey, key)
	}
	return NestedSpec{P: p, D: d, Q: q}, nil
}

// DecodeCascadeKey parses "AR<l1>AR<l2>..." or "MA<l1>MA<l2>...". Mixed kinds
// are rejected.
func DecodeCascadeKey(key string) (CascadeSpec, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if !cascadeKeyRe.MatchString(key) {
		return CascadeSpec{}, fmt.Errorf("%w: %q", ErrBrokenKey, key)
	}

	var spec CascadeSpec
	for i, m := range factorRe.FindAllStringSubmatch(key, -1) {
		kind, err := features.ParseKind(m[1])
		if err != nil {
			return CascadeSpec{}, fmt.Errorf("%w: %q: %v", ErrBrokenKey, key, err)
		}
		if i == 0 {
			spec.Kind = kind
		} else if kind != spec.Kind {
			return CascadeSpec{}, fmt.Errorf("%w: %q mixes AR and MA factors", ErrBrokenKey, key)
		}

		lag, err := strconv.Atoi(m[2])
		if err != nil || lag < kind.MinLag() {
			return CascadeSpec{}, fmt.Errorf("%w: %q: bad lag %q", ErrBrokenKey, key, m[2])
		}
		spec.Lags = append(spec.Lags, lag)
	}
	return spec, nil
}
