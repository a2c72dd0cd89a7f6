// Package clamd is a client for the clamd antivirus scanning protocol.
//
// A scan can reach the engine three ways: by running clamdscan as a local
// command, by streaming the file to clamd over TCP with INSTREAM, or by asking
// clamd to SCAN a path over its Unix domain socket. Every reply is normalized
// into a ScanResult. The package performs no signature matching itself.
//
// Which transports the host offers is decided elsewhere and passed in as an
// Availability value; the Client never probes the host on its own.
//
// # Quick Start
//
//	client, err := clamd.NewClient(clamd.DefaultConfig(), clamd.Availability{TCP: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := client.ScanFile(ctx, "/path/to/file.pdf")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Infected: %v %v\n", result.IsInfected(), result.Fail)
package clamd
