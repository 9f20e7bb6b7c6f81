package core

import "errors"

var (
	// ErrPhyBusy is returned when Transmit is called while a transmission is
	// in progress.
	ErrPhyBusy = errors.New("phy is not idle")
	// ErrInvalidSymbolPeriod is returned when the symbol period is not positive.
	ErrInvalidSymbolPeriod = errors.New("symbol period must be positive")
	// ErrNoErrorModel is returned when a phy receives without an error model.
	ErrNoErrorModel = errors.New("no error model bound to phy")
	// ErrNoTxAntenna is returned when a phy without a laser transmits.
	ErrNoTxAntenna = errors.New("no laser antenna bound to phy")
	// ErrNoRxAntenna is returned when the error model needs receiver optics
	// that are not set.
	ErrNoRxAntenna = errors.New("no optical receiver antenna bound to phy")
	// ErrNoChannel is returned when a phy transmits before being attached.
	ErrNoChannel = errors.New("phy is not attached to a channel")
	// ErrChannelNotConfigured is returned by Send when the delay model or
	// the loss chain is missing.
	ErrChannelNotConfigured = errors.New("channel has no propagation delay model or loss chain")
	// ErrTransmitterBelowReceiver is returned by the downlink turbulence
	// models when the transmitter is lower than the receiver.
	ErrTransmitterBelowReceiver = errors.New("transmitter altitude is below receiver altitude")
	// ErrUnknownStage is returned when a chain configuration names an
	// unknown propagation stage.
	ErrUnknownStage = errors.New("unknown propagation stage")
)
