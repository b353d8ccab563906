package email

// email is responsible for building messages (subject, body parts,
// recipients, senders, attachments and inline images) and handing them to a
// Transport, either once or once per recipient of a batch. It doesn't speak
// any delivery protocol itself: MIME serialization is delegated to gomail,
// and delivery to whichever Transport the caller wires into a Mailer.
