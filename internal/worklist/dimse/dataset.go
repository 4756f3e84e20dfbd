package dimse

import "github.com/healthbridge/ormworklist/internal/dcm"

// sequenceStart and sequenceEnd bracket each nested sequence item in the
// flattened element stream. They reuse the DICOM Item and Item Delimitation
// tags, but the bracketing itself is this package's own convention (the
// sequence element is written with a zero length), which keeps sequence
// encoding simple without a full VR table.
var (
	sequenceStart = dcm.Tag{Group: 0xFFFE, Element: 0xE000}
	sequenceEnd   = dcm.Tag{Group: 0xFFFE, Element: 0xE00D}
)

// EncodeDataSet flattens ds into an implicit-VR LE element stream. Scalar
// tags are encoded directly; sequence tags are encoded as the sequence
// tag with a zero-length placeholder followed by each item's elements
// bracketed by sequenceStart/sequenceEnd markers.
func EncodeDataSet(ds *dcm.DataSet) []byte {
	var elems []rawElement
	for _, tag := range ds.Tags() {
		if items, ok := ds.Sequence(tag); ok {
			elems = append(elems, rawElement{Tag: tag, Value: nil})
			for _, item := range items {
				elems = append(elems, rawElement{Tag: sequenceStart, Value: nil})
				elems = append(elems, flattenScalars(item)...)
				elems = append(elems, rawElement{Tag: sequenceEnd, Value: nil})
			}
			continue
		}
		value, _ := ds.Get(tag)
		elems = append(elems, rawElement{Tag: tag, Value: []byte(value)})
	}
	return encodeElements(elems)
}

func flattenScalars(ds *dcm.DataSet) []rawElement {
	var elems []rawElement
	for _, tag := range ds.Tags() {
		value, _ := ds.Get(tag)
		elems = append(elems, rawElement{Tag: tag, Value: []byte(value)})
	}
	return elems
}

// DecodeDataSet parses an implicit-VR LE element stream produced by
// EncodeDataSet back into a DataSet.
func DecodeDataSet(data []byte) (*dcm.DataSet, error) {
	raw, err := decodeElements(data)
	if err != nil {
		return nil, err
	}

	ds := dcm.NewDataSet()
	var seqTag dcm.Tag
	var inSeq bool
	var items []*dcm.DataSet
	var current *dcm.DataSet

	for _, e := range raw {
		switch e.Tag {
		case sequenceStart:
			current = dcm.NewDataSet()
			continue
		case sequenceEnd:
			if current != nil {
				items = append(items, current)
				current = nil
			}
			continue
		}

		if current != nil {
			current.Set(e.Tag, trimTrailingSpace(e.Value))
			continue
		}

		if len(e.Value) == 0 && isPossibleSequenceTag(e.Tag) {
			seqTag = e.Tag
			inSeq = true
			items = nil
			continue
		}

		ds.Set(e.Tag, trimTrailingSpace(e.Value))
	}
	if inSeq {
		ds.SetSequence(seqTag, items)
	}
	return ds, nil
}

func isPossibleSequenceTag(tag dcm.Tag) bool {
	return tag == dcm.TagScheduledProcedureStepSequence
}
