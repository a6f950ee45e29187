package transferstore

import (
	"encoding/binary"
	"fmt"

	"tripbased.dev/core/schedule"
)

// EncodeStoppingEvent serializes a stopping event as spec.md §4.3 prescribes:
// utf8(feedId), length-prefixed binary-encoded tripDescriptor, big-endian
// int32 stopSequence. Grounded on Trips.java's TripAtStopTime.writeObject.
func EncodeStoppingEvent(e schedule.StoppingEvent) []byte {
	td := encodeTripDescriptor(e.Trip)

	buf := make([]byte, 0, 2+len(e.FeedID)+4+len(td)+4)
	buf = appendUTF(buf, string(e.FeedID))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(td)))
	buf = append(buf, td...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(int32(e.StopSequence)))
	return buf
}

// DecodeStoppingEvent reverses EncodeStoppingEvent, returning the event and
// the number of bytes consumed from b.
func DecodeStoppingEvent(b []byte) (schedule.StoppingEvent, int, error) {
	feedID, n, err := readUTF(b)
	if err != nil {
		return schedule.StoppingEvent{}, 0, fmt.Errorf("transferstore: decode feedId: %w", err)
	}
	b = b[n:]
	consumed := n

	if len(b) < 4 {
		return schedule.StoppingEvent{}, 0, fmt.Errorf("transferstore: truncated tripDescriptor length")
	}
	tdLen := int(binary.BigEndian.Uint32(b))
	b = b[4:]
	consumed += 4
	if len(b) < tdLen {
		return schedule.StoppingEvent{}, 0, fmt.Errorf("transferstore: truncated tripDescriptor body")
	}
	td, err := decodeTripDescriptor(b[:tdLen])
	if err != nil {
		return schedule.StoppingEvent{}, 0, err
	}
	b = b[tdLen:]
	consumed += tdLen

	if len(b) < 4 {
		return schedule.StoppingEvent{}, 0, fmt.Errorf("transferstore: truncated stopSequence")
	}
	stopSeq := int32(binary.BigEndian.Uint32(b))
	consumed += 4

	return schedule.StoppingEvent{
		FeedID:       schedule.FeedId(feedID),
		Trip:         td,
		StopSequence: int(stopSeq),
	}, consumed, nil
}

func encodeTripDescriptor(td schedule.TripDescriptor) []byte {
	buf := make([]byte, 0, len(td.TripID)+len(td.RouteID)+9)
	buf = appendUTF(buf, td.TripID)
	buf = appendUTF(buf, td.RouteID)
	if td.HasStart {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(int32(td.StartTime)))
	return buf
}

func decodeTripDescriptor(b []byte) (schedule.TripDescriptor, error) {
	tripID, n, err := readUTF(b)
	if err != nil {
		return schedule.TripDescriptor{}, fmt.Errorf("transferstore: decode tripId: %w", err)
	}
	b = b[n:]

	routeID, n, err := readUTF(b)
	if err != nil {
		return schedule.TripDescriptor{}, fmt.Errorf("transferstore: decode routeId: %w", err)
	}
	b = b[n:]

	if len(b) < 5 {
		return schedule.TripDescriptor{}, fmt.Errorf("transferstore: truncated tripDescriptor tail")
	}
	hasStart := b[0] == 1
	startTime := int32(binary.BigEndian.Uint32(b[1:5]))

	return schedule.TripDescriptor{
		TripID:    tripID,
		RouteID:   routeID,
		HasStart:  hasStart,
		StartTime: int(startTime),
	}, nil
}

// EncodeDestinations serializes the ordered onward-stopping-event
// collection for a single origin.
func EncodeDestinations(dst []schedule.StoppingEvent) []byte {
	buf := make([]byte, 4, 4+len(dst)*24)
	binary.BigEndian.PutUint32(buf, uint32(len(dst)))
	for _, d := range dst {
		buf = append(buf, EncodeStoppingEvent(d)...)
	}
	return buf
}

// DecodeDestinations reverses EncodeDestinations.
func DecodeDestinations(b []byte) ([]schedule.StoppingEvent, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("transferstore: truncated destinations count")
	}
	count := int(binary.BigEndian.Uint32(b))
	b = b[4:]

	out := make([]schedule.StoppingEvent, 0, count)
	for i := 0; i < count; i++ {
		e, n, err := DecodeStoppingEvent(b)
		if err != nil {
			return nil, fmt.Errorf("transferstore: destination %d: %w", i, err)
		}
		out = append(out, e)
		b = b[n:]
	}
	return out, nil
}

func appendUTF(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

func readUTF(b []byte) (string, int, error) {
	if len(b) < 2 {
		return "", 0, fmt.Errorf("truncated utf8 length prefix")
	}
	n := int(binary.BigEndian.Uint16(b))
	if len(b) < 2+n {
		return "", 0, fmt.Errorf("truncated utf8 body")
	}
	return string(b[2 : 2+n]), 2 + n, nil
}
