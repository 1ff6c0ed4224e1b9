package rooms

import (
	"fmt"
	"strings"
)

const reviewPayloadPrefix = "review_"

const (
	firstFloor    = 1
	lastFloor     = 5
	roomsPerFloor = 10
)

// Catalog returns every room label that gets a printed QR code: 101-110 through 501-510.
func Catalog() []string {
	rooms := make([]string, 0, (lastFloor-firstFloor+1)*roomsPerFloor)
	for floor := firstFloor; floor <= lastFloor; floor++ {
		for n := 1; n <= roomsPerFloor; n++ {
			rooms = append(rooms, fmt.Sprintf("%d%02d", floor, n))
		}
	}
	return rooms
}

func Contains(room string) bool {
	for _, r := range Catalog() {
		if r == room {
			return true
		}
	}
	return false
}

// DeepLink builds the start link encoded into a room's QR code.
func DeepLink(botUsername, room string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s%s", strings.TrimPrefix(botUsername, "@"), reviewPayloadPrefix, room)
}

// ParseStartPayload extracts the room from a /start argument such as "review_205".
func ParseStartPayload(payload string) (string, bool) {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, reviewPayloadPrefix) {
		return "", false
	}

	room := strings.TrimPrefix(payload, reviewPayloadPrefix)
	if room == "" || strings.ContainsAny(room, " \t\n") {
		return "", false
	}
	return room, true
}
