package notify

import (
	"strconv"
	"strings"
)

// Directory resolves the named channel sets used by the workflows.
type Directory struct {
	AdminIDs    []int64
	ManagerIDs  []int64
	ReportEmail string
	StaffEmail  string
}

func telegramRecipient(id int64) Recipient {
	return Recipient{Channel: ChannelTelegram, Address: strconv.FormatInt(id, 10)}
}

func (d Directory) Admins() []Recipient {
	out := make([]Recipient, 0, len(d.AdminIDs))
	for _, id := range d.AdminIDs {
		out = append(out, telegramRecipient(id))
	}
	return out
}

// Moderators is admins plus managers, each id once.
func (d Directory) Moderators() []Recipient {
	seen := make(map[int64]bool, len(d.AdminIDs)+len(d.ManagerIDs))
	var out []Recipient
	for _, ids := range [][]int64{d.AdminIDs, d.ManagerIDs} {
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, telegramRecipient(id))
		}
	}
	return out
}

func (d Directory) Report() []Recipient {
	if d.ReportEmail == "" {
		return nil
	}
	return []Recipient{{Channel: ChannelEmail, Address: d.ReportEmail}}
}

func (d Directory) Staff() []Recipient {
	if d.StaffEmail == "" {
		return nil
	}
	return []Recipient{{Channel: ChannelEmail, Address: d.StaffEmail}}
}

// Guest prefers the numeric chat id and falls back to the @handle.
func Guest(requesterID *int64, handle string) []Recipient {
	if requesterID != nil && *requesterID != 0 {
		return []Recipient{telegramRecipient(*requesterID)}
	}
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		return nil
	}
	return []Recipient{{Channel: ChannelTelegram, Address: "@" + handle}}
}
