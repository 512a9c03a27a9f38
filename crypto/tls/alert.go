//
// Copyright (c) 2025 Markku Rossi
//
// All rights reserved.
//

package tls

import (
	"errors"
	"fmt"
)

// AlertLevel specifies the severity of an alert.
type AlertLevel uint8

// Alert levels.
const (
	AlertLevelWarning AlertLevel = 1
	AlertLevelFatal   AlertLevel = 2
)

func (l AlertLevel) String() string {
	switch l {
	case AlertLevelWarning:
		return "warning"
	case AlertLevelFatal:
		return "fatal"
	default:
		return fmt.Sprintf("{AlertLevel %d}", l)
	}
}

// AlertDescription names the reason for an alert (RFC 8446 §6).
type AlertDescription uint8

// Alert descriptions used by this implementation.
const (
	AlertCloseNotify        AlertDescription = 0
	AlertUnexpectedMessage  AlertDescription = 10
	AlertBadRecordMAC       AlertDescription = 20
	AlertRecordOverflow     AlertDescription = 22
	AlertHandshakeFailure   AlertDescription = 40
	AlertBadCertificate     AlertDescription = 42
	AlertCertificateExpired AlertDescription = 45
	AlertCertificateUnknown AlertDescription = 46
	AlertIllegalParameter   AlertDescription = 47
	AlertUnknownCA          AlertDescription = 48
	AlertAccessDenied       AlertDescription = 49
	AlertDecodeError        AlertDescription = 50
	AlertDecryptError       AlertDescription = 51
	AlertProtocolVersion    AlertDescription = 70
	AlertInsufficientSecurity AlertDescription = 71
	AlertInternalError      AlertDescription = 80
	AlertInappropriateFallback AlertDescription = 86
	AlertUserCanceled       AlertDescription = 90
	AlertMissingExtension   AlertDescription = 109
	AlertUnsupportedExtension AlertDescription = 110
	AlertUnrecognizedName   AlertDescription = 112
	AlertBadCertificateStatusResponse AlertDescription = 113
	AlertUnknownPSKIdentity AlertDescription = 115
	AlertCertificateRequired AlertDescription = 116
	AlertNoApplicationProtocol AlertDescription = 120
)

var alertNames = map[AlertDescription]string{
	AlertCloseNotify:                  "close_notify",
	AlertUnexpectedMessage:            "unexpected_message",
	AlertBadRecordMAC:                 "bad_record_mac",
	AlertRecordOverflow:               "record_overflow",
	AlertHandshakeFailure:             "handshake_failure",
	AlertBadCertificate:               "bad_certificate",
	AlertCertificateExpired:           "certificate_expired",
	AlertCertificateUnknown:           "certificate_unknown",
	AlertIllegalParameter:             "illegal_parameter",
	AlertUnknownCA:                    "unknown_ca",
	AlertAccessDenied:                 "access_denied",
	AlertDecodeError:                  "decode_error",
	AlertDecryptError:                 "decrypt_error",
	AlertProtocolVersion:              "protocol_version",
	AlertInsufficientSecurity:         "insufficient_security",
	AlertInternalError:                "internal_error",
	AlertInappropriateFallback:        "inappropriate_fallback",
	AlertUserCanceled:                 "user_canceled",
	AlertMissingExtension:             "missing_extension",
	AlertUnsupportedExtension:         "unsupported_extension",
	AlertUnrecognizedName:             "unrecognized_name",
	AlertBadCertificateStatusResponse: "bad_certificate_status_response",
	AlertUnknownPSKIdentity:           "unknown_psk_identity",
	AlertCertificateRequired:          "certificate_required",
	AlertNoApplicationProtocol:        "no_application_protocol",
}

func (desc AlertDescription) String() string {
	if name, ok := alertNames[desc]; ok {
		return name
	}
	return fmt.Sprintf("{AlertDescription %d}", desc)
}

// Level returns the alert level this implementation sends for the
// description: close_notify and user_canceled are sent as warnings,
// every other description as fatal, per RFC 8446 §6.
func (desc AlertDescription) Level() AlertLevel {
	switch desc {
	case AlertCloseNotify, AlertUserCanceled:
		return AlertLevelWarning
	default:
		return AlertLevelFatal
	}
}

// Alert is the two-byte alert record body.
type Alert struct {
	Level       AlertLevel
	Description AlertDescription
}

func (a Alert) Error() string {
	return fmt.Sprintf("tls: %s alert: %s", a.Level, a.Description)
}

// Bytes encodes the alert as its two-byte wire form.
func (a Alert) Bytes() []byte {
	return []byte{byte(a.Level), byte(a.Description)}
}

// sendAlert transmits an alert with the given description, at the
// level desc.Level() returns, and returns an error describing it,
// joined with any transport failure encountered while sending it.
func (conn *Connection) sendAlert(desc AlertDescription) error {
	a := Alert{Level: desc.Level(), Description: desc}
	err := conn.writeAlert(a)
	if err != nil {
		return errors.Join(err, a)
	}
	return a
}

func (conn *Connection) decodeErrorf(format string, args ...interface{}) error {
	orig := fmt.Errorf(format, args...)
	if err := conn.sendAlert(AlertDecodeError); err != nil {
		return errors.Join(err, orig)
	}
	return orig
}

func (conn *Connection) illegalParameterf(format string, args ...interface{}) error {
	orig := fmt.Errorf(format, args...)
	if err := conn.sendAlert(AlertIllegalParameter); err != nil {
		return errors.Join(err, orig)
	}
	return orig
}

func (conn *Connection) unexpectedMessagef(format string, args ...interface{}) error {
	orig := fmt.Errorf(format, args...)
	if err := conn.sendAlert(AlertUnexpectedMessage); err != nil {
		return errors.Join(err, orig)
	}
	return orig
}

func (conn *Connection) handshakeFailuref(format string, args ...interface{}) error {
	orig := fmt.Errorf(format, args...)
	if err := conn.sendAlert(AlertHandshakeFailure); err != nil {
		return errors.Join(err, orig)
	}
	return orig
}

func (conn *Connection) internalErrorf(format string, args ...interface{}) error {
	orig := fmt.Errorf(format, args...)
	if err := conn.sendAlert(AlertInternalError); err != nil {
		return errors.Join(err, orig)
	}
	return orig
}

func (conn *Connection) protocolVersionf(format string, args ...interface{}) error {
	orig := fmt.Errorf(format, args...)
	if err := conn.sendAlert(AlertProtocolVersion); err != nil {
		return errors.Join(err, orig)
	}
	return orig
}

func (conn *Connection) badCertificatef(desc AlertDescription, format string, args ...interface{}) error {
	orig := fmt.Errorf(format, args...)
	if err := conn.sendAlert(desc); err != nil {
		return errors.Join(err, orig)
	}
	return orig
}
