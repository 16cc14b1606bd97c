package search

import (
	"fmt"
	"strconv"
	"strings"
)

// Response is a parsed $SR (spec.md §4.7).
type Response struct {
	Nick        string
	Filename    string
	IsDirectory bool
	Size        int64
	FreeSlots   int
	TotalSlots  int
	TTH         string
	HubName     string
	HubAddress string // "ip:port" parenthesized suffix, if present
}

// ParseSR decodes a $SR body (everything after "$SR "). Both a file and a
// directory response carry two 0x05 separators (three parts: name,
// size/slots, hub); they're told apart by the middle part's shape -- a file
// response's is "<size> <free>/<total>" (has a space), a directory
// response's is bare "<free>/<total>" (spec.md §4.7).
func ParseSR(body string) (Response, bool) {
	nickAndRest := strings.SplitN(body, " ", 2)
	if len(nickAndRest) != 2 {
		return Response{}, false
	}
	nick := nickAndRest[0]
	rest := nickAndRest[1]

	parts := strings.Split(rest, "\x05")
	if len(parts) != 3 {
		return Response{}, false
	}
	if strings.Contains(strings.TrimSpace(parts[1]), " ") {
		return parseFileResponse(nick, parts)
	}
	return parseDirResponse(nick, parts)
}

func parseFileResponse(nick string, parts []string) (Response, bool) {
	// parts: [filename, "<size> <free>/<total>", "hubname (ip:port)"]
	filename, tth := splitTTH(parts[0])
	size, free, total, ok := parseSizeSlots(parts[1])
	if !ok {
		return Response{}, false
	}
	hubName, hubAddr := splitHub(parts[2])
	return Response{
		Nick: nick, Filename: filename, IsDirectory: false,
		Size: size, FreeSlots: free, TotalSlots: total, TTH: tth,
		HubName: hubName, HubAddress: hubAddr,
	}, true
}

func parseDirResponse(nick string, parts []string) (Response, bool) {
	// parts: [dirname, "<free>/<total>", "hubname (ip:port)"]
	free, total, ok := parseSlots(parts[1])
	if !ok {
		return Response{}, false
	}
	hubName, hubAddr := splitHub(parts[2])
	return Response{
		Nick: nick, Filename: parts[0], IsDirectory: true,
		FreeSlots: free, TotalSlots: total,
		HubName: hubName, HubAddress: hubAddr,
	}, true
}

func splitTTH(filename string) (name, tth string) {
	const marker = "TTH:"
	if i := strings.LastIndex(filename, marker); i >= 0 && i > 0 {
		return strings.TrimRight(filename[:i], " "), filename[i+len(marker):]
	}
	return filename, ""
}

// SRParams describes a file share match to announce back to a searcher
// (spec.md §8 Scenario 1: "the daemon answers with an $SR naming the
// matching file").
type SRParams struct {
	Nick       string
	Filename   string // virtual path, '\'-separated, e.g. `M\a.bin`
	TTH        string // empty for a directory match
	Size       int64
	FreeSlots  int
	TotalSlots int
	HubName    string
	HubAddress string // hub's "ip:port", parenthesized after HubName
}

// FormatSR builds the wire body of a $SR reply, the inverse of ParseSR.
func FormatSR(p SRParams) string {
	name := p.Filename
	if p.TTH != "" {
		name += " TTH:" + p.TTH
	}
	var sb strings.Builder
	sb.WriteString("$SR ")
	sb.WriteString(p.Nick)
	sb.WriteByte(' ')
	sb.WriteString(name)
	sb.WriteByte(0x05)
	fmt.Fprintf(&sb, "%d %d/%d", p.Size, p.FreeSlots, p.TotalSlots)
	sb.WriteByte(0x05)
	sb.WriteString(p.HubName)
	sb.WriteString(" (")
	sb.WriteString(p.HubAddress)
	sb.WriteString(")|")
	return sb.String()
}

func parseSizeSlots(s string) (size int64, free, total int, ok bool) {
	fields := strings.SplitN(strings.TrimSpace(s), " ", 2)
	if len(fields) != 2 {
		return 0, 0, 0, false
	}
	size, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, 0, 0, false
	}
	free, total, ok = parseSlots(fields[1])
	return size, free, total, ok
}

func parseSlots(s string) (free, total int, ok bool) {
	fields := strings.SplitN(strings.TrimSpace(s), "/", 2)
	if len(fields) != 2 {
		return 0, 0, false
	}
	f, err1 := strconv.Atoi(fields[0])
	t, err2 := strconv.Atoi(fields[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return f, t, true
}

func splitHub(s string) (name, address string) {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "("); i >= 0 && strings.HasSuffix(s, ")") {
		return strings.TrimSpace(s[:i]), s[i+1 : len(s)-1]
	}
	return s, ""
}
