package sendmail

// sendmail delivers messages through a local sendmail-compatible binary.
// Transport passes the envelope on the command line; Native mimics the
// platform mail facility, letting sendmail read recipients from the headers.
