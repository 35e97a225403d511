// Package docstore implements the repositories on Cloud Firestore.
//
// Timestamps cross this boundary as time.Time only. Older documents written
// by other clients may carry {seconds, nanoseconds} maps instead of native
// timestamps; those are normalized here so the core never sees them.
package docstore

import (
	"fmt"
	"time"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
)

const (
	fieldFirstResponseDue = "first_response_due"
	fieldResolutionDue    = "resolution_due"
	fieldFirstResponseAt  = "first_response_at"
	fieldResolvedAt       = "resolved_at"
	fieldBreached         = "breached"
)

func timerToMap(timer *domain.SLATimer) map[string]interface{} {
	if timer == nil {
		return nil
	}
	out := map[string]interface{}{
		fieldFirstResponseDue: timer.FirstResponseDue.UTC(),
		fieldResolutionDue:    timer.ResolutionDue.UTC(),
		fieldFirstResponseAt:  nil,
		fieldResolvedAt:       nil,
		fieldBreached:         timer.Breached,
	}
	if timer.FirstResponseAt != nil {
		out[fieldFirstResponseAt] = timer.FirstResponseAt.UTC()
	}
	if timer.ResolvedAt != nil {
		out[fieldResolvedAt] = timer.ResolvedAt.UTC()
	}
	return out
}

func timerFromMap(raw map[string]interface{}) (*domain.SLATimer, error) {
	if raw == nil {
		return nil, nil
	}
	firstDue, err := requiredTime(raw, fieldFirstResponseDue)
	if err != nil {
		return nil, err
	}
	resolutionDue, err := requiredTime(raw, fieldResolutionDue)
	if err != nil {
		return nil, err
	}
	firstAt, err := optionalTime(raw[fieldFirstResponseAt])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fieldFirstResponseAt, err)
	}
	resolvedAt, err := optionalTime(raw[fieldResolvedAt])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fieldResolvedAt, err)
	}
	breached, _ := raw[fieldBreached].(bool)
	return &domain.SLATimer{
		FirstResponseDue: firstDue,
		ResolutionDue:    resolutionDue,
		FirstResponseAt:  firstAt,
		ResolvedAt:       resolvedAt,
		Breached:         breached,
	}, nil
}

func requiredTime(raw map[string]interface{}, field string) (time.Time, error) {
	t, err := optionalTime(raw[field])
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", field, err)
	}
	if t == nil {
		return time.Time{}, fmt.Errorf("%s: missing", field)
	}
	return *t, nil
}

// optionalTime accepts a native timestamp or a {seconds, nanoseconds} map.
func optionalTime(v interface{}) (*time.Time, error) {
	switch value := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		t := value.UTC()
		return &t, nil
	case *time.Time:
		if value == nil {
			return nil, nil
		}
		t := value.UTC()
		return &t, nil
	case map[string]interface{}:
		seconds, ok := asInt64(value["seconds"])
		if !ok {
			seconds, ok = asInt64(value["_seconds"])
		}
		if !ok {
			return nil, fmt.Errorf("timestamp map without seconds")
		}
		nanos, _ := asInt64(value["nanoseconds"])
		if nanos == 0 {
			nanos, _ = asInt64(value["_nanoseconds"])
		}
		t := time.Unix(seconds, nanos).UTC()
		return &t, nil
	default:
		return nil, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
