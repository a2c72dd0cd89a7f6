package clamd

import (
	"context"
	"fmt"
	"strings"
)

// EICAR is the industry standard antivirus test string.
var EICAR = []byte(`X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`)

const cleanSample = "This is a clean test file with no malicious content.\n"

// SelfTest scans a clean sample and the EICAR string over the primary transport and
// fails unless the engine passes the first and flags the second.
func (c *Client) SelfTest(ctx context.Context) error {
	res, err := c.ScanReader(ctx, strings.NewReader(cleanSample), "clean.txt")
	if err != nil {
		return err
	}
	if !res.IsClean() {
		return NewEngineError(fmt.Sprintf("clean sample was not passed: %q", res.Raw), res.Raw)
	}

	res, err = c.ScanReader(ctx, strings.NewReader(string(EICAR)), "eicar.com")
	if err != nil {
		return err
	}
	if !res.IsInfected() {
		return NewEngineError(fmt.Sprintf("EICAR sample was not detected: %q", res.Raw), res.Raw)
	}
	return nil
}
