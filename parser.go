package clamd

import (
	"strings"
)

// Example replies from clamdscan and clamd:
//
//	/tmp/clean.eml: OK
//	/tmp/eicar.eml: Eicar-Test-Signature FOUND
//	stream: Eicar-Test-Signature FOUND
//	/tmp/missing: lstat() failed: No such file or directory. ERROR

// ParseReply classifies a raw engine reply. Only the first line decides OK and FOUND;
// the whole reply is searched for ERROR. An unrecognized reply yields an indeterminate
// result and a nil error. A FOUND line without a signature yields a protocol error.
func ParseReply(reply string) (ScanResult, error) {
	result := ScanResult{
		Pass:  []string{},
		Fail:  []string{},
		Error: []string{},
		Raw:   reply,
	}

	first := reply
	if i := strings.IndexAny(reply, "\r\n"); i >= 0 {
		first = reply[:i]
	}
	first = strings.TrimSuffix(first, "\x00")

	if strings.HasSuffix(first, "OK") {
		result.Pass = append(result.Pass, "OK")
		return result, nil
	}

	if strings.HasSuffix(first, "FOUND") {
		// The signature is the first word of the second ": " field.
		parts := strings.Split(first, ": ")
		if len(parts) < 2 {
			return ScanResult{}, NewProtocolError("malformed FOUND reply", reply)
		}
		fields := strings.Fields(parts[1])
		if len(fields) == 0 || fields[0] == "FOUND" {
			return ScanResult{}, NewProtocolError("malformed FOUND reply", reply)
		}
		result.Fail = append(result.Fail, fields[0])
		return result, nil
	}

	if strings.Contains(reply, "ERROR") {
		result.Error = append(result.Error, reply)
	}

	return result, nil
}

// interpret turns a parsed reply into the outcome a scanner returns to its caller.
func interpret(name, reply string) (ScanResult, error) {
	result, err := ParseReply(reply)
	if err != nil {
		return ScanResult{}, err
	}
	result.Name = name

	switch {
	case result.HasError():
		return ScanResult{}, NewEngineError("engine reported an error", reply)
	case result.IsIndeterminate():
		return ScanResult{}, NewProtocolError("unrecognized reply", reply)
	}
	return result, nil
}
