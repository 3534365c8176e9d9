package portal

import "strings"

// Endpoint is one known API location: a path under the portal base URL and
// its fixed query string.
type Endpoint struct {
	Path  string
	Query string
}

// URL joins the endpoint onto base.
func (e Endpoint) URL(base string) string {
	return strings.TrimRight(base, "/") + "/" + e.Path + "?" + e.Query
}

func (e Endpoint) String() string { return e.Path }

const (
	channelsQuery = "type=itv&action=get_all_channels&JsHttpRequest=1-xml"
	genresQuery   = "type=itv&action=get_genres&JsHttpRequest=1-xml"
)

// Handshake issues the session token.
var Handshake = Endpoint{Path: "portal.php", Query: "action=handshake&type=stb&token=&JsHttpRequest=1-xml"}

// ChannelEndpoints are tried in order until one answers 2xx with a data
// array. The first such answer is final: an empty array is ErrNoChannels.
var ChannelEndpoints = []Endpoint{
	{Path: "portal.php", Query: channelsQuery},
	{Path: "server/load.php", Query: channelsQuery},
	{Path: "stalker_portal/server/load.php", Query: channelsQuery},
}

// GenreEndpoints are tried in order until one returns a genre array.
var GenreEndpoints = []Endpoint{
	{Path: "server/load.php", Query: genresQuery},
	{Path: "stalker_portal/server/load.php", Query: genresQuery},
}
