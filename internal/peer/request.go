package peer

import (
	"fmt"

	"github.com/shakespeer/sphubd/internal/nmdc"
)

// FilelistPath is the modern filelist filename; LegacyFilelistPath is the
// old one requested when a peer doesn't support the XML list.
const (
	FilelistPath       = "files.xml.bz2"
	LegacyFilelistPath = "MyList.DcLst"
)

// RequestFor picks the wire command used to ask for a file, following
// spec.md §4.6's preference order: ADCGET-by-TTH, then ADCGET-by-path, then
// UGetBlock, then the legacy $Get. tth may be empty when requesting by path
// only (no known hash yet).
func (c *Connection) RequestFor(path, tth string, offset, length int64) string {
	switch {
	case c.Caps.ADCGet && c.Caps.TTHF && tth != "":
		return nmdc.FrameCommandSpaced("ADCGET", "file", "TTH/"+tth, fmt.Sprintf("%d", offset), fmt.Sprintf("%d", length))
	case c.Caps.ADCGet:
		return nmdc.FrameCommandSpaced("ADCGET", "file", path, fmt.Sprintf("%d", offset), fmt.Sprintf("%d", length))
	case c.Caps.XMLBZList:
		return nmdc.FrameCommandSpaced("UGetBlock", fmt.Sprintf("%d", offset), fmt.Sprintf("%d", length), path)
	default:
		return nmdc.FrameCommand("Get", path, fmt.Sprintf("%d+1", offset))
	}
}

// FilelistRequestPath returns which filelist filename to request given our
// peer's advertised capabilities.
func (c *Connection) FilelistRequestPath() string {
	if c.Caps.XMLBZList {
		return FilelistPath
	}
	return LegacyFilelistPath
}

// LeafDataSuffix is the temporary filename suffix used for a target's
// downloaded TTH leaf data (spec.md §4.6: "The temporary filename for leaf
// data is <target>.tthl").
const LeafDataSuffix = ".tthl"
