// Package feed encodes simulated vehicles as a GTFS-realtime VehiclePositions feed.
package feed

import (
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"smartbus-simulator/internal/transit"
)

const gtfsRealtimeVersion = "2.0"

// VehiclePositions builds a full-dataset feed. Dwelling vehicles are STOPPED_AT their
// current stop, moving ones IN_TRANSIT_TO the next.
func VehiclePositions(at time.Time, vehicles []transit.VehicleState) *gtfs.FeedMessage {
	ts := uint64(at.Unix())
	msg := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String(gtfsRealtimeVersion),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(ts),
		},
	}
	for _, v := range vehicles {
		status := gtfs.VehiclePosition_IN_TRANSIT_TO
		stopID := v.NextStop
		seq := uint32(v.NextRouteIndex)
		if v.Progress == 0 {
			status = gtfs.VehiclePosition_STOPPED_AT
			stopID = v.CurrentStop
			seq = uint32(v.RouteIndex)
		}
		msg.Entity = append(msg.Entity, &gtfs.FeedEntity{
			Id: proto.String(v.ID),
			Vehicle: &gtfs.VehiclePosition{
				Trip: &gtfs.TripDescriptor{
					RouteId: proto.String(v.RouteID),
				},
				Vehicle: &gtfs.VehicleDescriptor{
					Id:    proto.String(v.ID),
					Label: proto.String(v.ID),
				},
				Position: &gtfs.Position{
					Latitude:  proto.Float32(float32(v.Position.Lat)),
					Longitude: proto.Float32(float32(v.Position.Lng)),
					Bearing:   proto.Float32(float32(v.Bearing)),
				},
				CurrentStopSequence: proto.Uint32(seq),
				StopId:              proto.String(stopID),
				CurrentStatus:       status.Enum(),
				Timestamp:           proto.Uint64(ts),
			},
		})
	}
	return msg
}

func Marshal(msg *gtfs.FeedMessage) ([]byte, error) {
	return proto.Marshal(msg)
}

// MarshalJSON renders the feed with protojson, for debugging.
func MarshalJSON(msg *gtfs.FeedMessage) ([]byte, error) {
	return protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(msg)
}
