package hub

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shakespeer/sphubd/internal/nmdc"
)

// SearchRequest describes one outgoing NMDC search (spec.md §4.7).
type SearchRequest struct {
	SizeRestricted bool
	IsAtLeast      bool
	Size           int64
	Type           int
	Pattern        string // space-joined terms, or the raw TTH for Type==SearchTypeTTH
}

// FormatSearch renders the $Search (active) command. myIPPort is
// "ip:port" for the active case.
func FormatSearch(myIPPort string, r SearchRequest) string {
	return nmdc.FrameCommand("Search", myIPPort+" "+searchBody(r))
}

// FormatSearchPassive renders the $Search Hub:nick (passive) command.
func FormatSearchPassive(nick string, r SearchRequest) string {
	return nmdc.FrameCommand("Search", "Hub:"+nick+" "+searchBody(r))
}

// ParseSearch decodes an inbound $Search body (everything after "$Search
// ", whether active "ip:port ..." or passive "Hub:nick ..."), the inverse
// of FormatSearch/FormatSearchPassive. from is returned verbatim so the
// caller can tell active ("ip:port") from passive ("Hub:nick") and reply
// accordingly (spec.md §4.7).
func ParseSearch(body string) (from string, r SearchRequest, ok bool) {
	sp := strings.SplitN(body, " ", 2)
	if len(sp) != 2 {
		return "", SearchRequest{}, false
	}
	fields := strings.Split(sp[1], "?")
	if len(fields) != 5 {
		return "", SearchRequest{}, false
	}
	size, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return "", SearchRequest{}, false
	}
	typ, err := strconv.Atoi(fields[3])
	if err != nil {
		return "", SearchRequest{}, false
	}
	pattern := fields[4]
	if typ == nmdc.SearchTypeTTH {
		pattern = strings.TrimPrefix(pattern, "TTH:")
	} else {
		pattern = strings.ReplaceAll(pattern, "$", " ")
	}
	return sp[0], SearchRequest{
		SizeRestricted: fields[0] == "T",
		IsAtLeast:      fields[1] == "T",
		Size:           size,
		Type:           typ,
		Pattern:        pattern,
	}, true
}

func searchBody(r SearchRequest) string {
	sizeRestrict := "F"
	if r.SizeRestricted {
		sizeRestrict = "T"
	}
	atLeast := "F"
	if r.IsAtLeast {
		atLeast = "T"
	}
	pattern := r.Pattern
	if r.Type != nmdc.SearchTypeTTH {
		pattern = strings.ReplaceAll(pattern, " ", "$")
	} else {
		pattern = "TTH:" + pattern
	}
	return fmt.Sprintf("%s?%s?%d?%d?%s", sizeRestrict, atLeast, r.Size, r.Type, pattern)
}
