package e2e

// e2e contains integration tests and utility code required to set up
// dependencies. The tests go from a YAML config file through the transport
// factory and the Mailer to a server that records what it received: an
// in-process SMTP server, or a fake HTTP mail API. Note that some e2e test
// dependencies are also used by unit tests--these dependencies are not
// included here.
