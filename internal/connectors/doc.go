// Package connectors holds ContentSource implementations.
// Each source produces normalised ContentRecords for one content type and is
// registered with the services.SourceRegistry at startup.
package connectors
