package overpass

import (
	"fmt"
	"strconv"

	"github.com/sells-group/business-finder/internal/model"
)

// NamedNodesQuery builds the Overpass QL selecting every node that carries
// a name tag within radiusMeters of center. timeoutSecs is the execution
// budget requested from the server.
func NamedNodesQuery(center model.Location, radiusMeters float64, timeoutSecs int) string {
	return fmt.Sprintf(`[out:json][timeout:%d];
(
  node["name"](around:%s,%s,%s);
);
out body;
`,
		timeoutSecs,
		strconv.FormatFloat(radiusMeters, 'f', -1, 64),
		strconv.FormatFloat(center.Latitude, 'f', -1, 64),
		strconv.FormatFloat(center.Longitude, 'f', -1, 64),
	)
}
