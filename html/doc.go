package html

// html is responsible for turning the HTML body of an email into the
// text/plain alternative every message is expected to carry. It's not
// concerned with how either body is sent.
