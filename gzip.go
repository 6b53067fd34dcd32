package shuttle

import (
	"bytes"
	"compress/gzip"
)

// compressor writes the compressed form of src to dst. It's a variable so
// tests can force the failure path.
var compressor = gzipCompress

func gzipCompress(dst *bytes.Buffer, src []byte) error {
	gw := gzip.NewWriter(dst)
	if _, err := gw.Write(src); err != nil {
		gw.Close()
		return err
	}
	return gw.Close()
}
