package catalog

import _ "embed"

//go:embed data.json
var embeddedData []byte
