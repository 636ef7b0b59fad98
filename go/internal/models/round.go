package models

// LatLng is a geographic position in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Round is the record published at games/{code}/currentRound once a round
// starts. Target is the ground truth players guess against; once published
// the pair is immutable for that round.
type Round struct {
	Panorama string `json:"panorama"`
	Target   LatLng `json:"target"`
}
