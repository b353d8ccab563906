package transport

// transport chooses and configures a delivery strategy (SMTP, sendmail, the
// local mail facility or a hosted API) from a Config. The strategies live in
// subpackages; this package only maps configuration onto them and shares the
// resulting transport through a Factory.
