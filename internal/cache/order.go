package cache

import (
	"sync"
	"time"

	"github.com/healthbridge/ormworklist/internal/dcm"
)

// Order is the canonical cached unit: raw HL7 text plus the metadata the
// cache derives from it. Orders are never mutated after creation; the
// derived DICOM dataset is computed lazily and cached in memory per the
// data model's invariant.
type Order struct {
	ID         string
	Raw        string
	ReceivedAt time.Time
	PatientID  string
	ControlID  string

	datasetOnce sync.Once
	dataset     *dcm.DataSet
	datasetErr  error
}

// Dataset returns the DICOM dataset derived from Raw, computing it via
// compute on first call and caching the result (including a nil dataset
// or an error) for the lifetime of the Order.
func (o *Order) Dataset(compute func(raw string) (*dcm.DataSet, error)) (*dcm.DataSet, error) {
	o.datasetOnce.Do(func() {
		o.dataset, o.datasetErr = compute(o.Raw)
	})
	return o.dataset, o.datasetErr
}
