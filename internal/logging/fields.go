// Package logging provides a small typed field builder on top of zap.
// Every SCF component logs through Fields rather than scattering
// zap.String/zap.Int calls at each call site, so field names stay
// consistent across broker, rpc, eventbus and the domain packages.
package logging

import (
	"time"

	"go.uber.org/zap"
)

// Fields is an ordered set of structured log fields under construction.
type Fields []zap.Field

// NewFields starts an empty field set.
func NewFields() Fields {
	return Fields{}
}

func (f Fields) with(field zap.Field) Fields {
	return append(f, field)
}

func (f Fields) Component(name string) Fields {
	return f.with(zap.String("component", name))
}

func (f Fields) Operation(op string) Fields {
	return f.with(zap.String("operation", op))
}

func (f Fields) Resource(resourceType, resourceName string) Fields {
	f = f.with(zap.String("resource_type", resourceType))
	if resourceName != "" {
		f = f.with(zap.String("resource_name", resourceName))
	}
	return f
}

func (f Fields) CorrelationID(id string) Fields {
	if id == "" {
		return f
	}
	return f.with(zap.String("correlation_id", id))
}

func (f Fields) RequestID(id string) Fields {
	if id == "" {
		return f
	}
	return f.with(zap.String("request_id", id))
}

func (f Fields) TripID(id string) Fields {
	return f.with(zap.String("trip_id", id))
}

func (f Fields) VehicleID(id string) Fields {
	return f.with(zap.String("vehicle_id", id))
}

func (f Fields) DriverID(id string) Fields {
	return f.with(zap.String("driver_id", id))
}

func (f Fields) Duration(d time.Duration) Fields {
	return f.with(zap.Duration("duration", d))
}

func (f Fields) Count(name string, n int) Fields {
	return f.with(zap.Int(name, n))
}

func (f Fields) Err(err error) Fields {
	if err == nil {
		return f
	}
	return f.with(zap.Error(err))
}

func (f Fields) String(key, value string) Fields {
	return f.with(zap.String(key, value))
}

func (f Fields) Bool(key string, value bool) Fields {
	return f.with(zap.Bool(key, value))
}
