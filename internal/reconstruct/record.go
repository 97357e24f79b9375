package reconstruct

// Point is one sparse measurement sample at an irregular image coordinate.
// Coordinates are stored as acquired (fractional) and cast to integers when
// the record is rasterized.
type Point struct {
	Row   float64
	Col   float64
	Value float64
}

// Index3 is a full volumetric (x, y, z) pixel coordinate, used by
// multi-channel program records to locate pixels in the evaluation volume.
type Index3 struct {
	X int32
	Y int32
	Z int32
}

// Record is one slice's raw measurement data as ingested.
// (BrainID, SliceIndex, Name) is unique within a store namespace.
type Record struct {
	Name       string
	BrainID    string
	SliceIndex float64

	// IsScatter discriminates the payload: scatter Points when true,
	// a prebuilt Dense image otherwise.
	IsScatter bool
	Dense     *Image
	Points    []Point

	// Multi-channel payload: channel values share the volumetric Indices.
	// ChannelOrder preserves ingestion order for dropdowns.
	Indices      []Index3
	Channels     map[string][]float64
	ChannelOrder []string
}

// ChannelRecord projects one named channel of a multi-channel record into a
// single-channel scatter record, pairing the channel values with the (y, z)
// components of the volumetric indices as (row, col).
func (r *Record) ChannelRecord(channel string) (*Record, bool) {
	values, ok := r.Channels[channel]
	if !ok || len(values) != len(r.Indices) {
		return nil, false
	}
	points := make([]Point, len(values))
	for i, idx := range r.Indices {
		points[i] = Point{Row: float64(idx.Y), Col: float64(idx.Z), Value: values[i]}
	}
	return &Record{
		Name:       channel,
		BrainID:    r.BrainID,
		SliceIndex: r.SliceIndex,
		IsScatter:  true,
		Points:     points,
	}, true
}
