// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package aes

import "fmt"

// Operation is the direction of a transaction.
type Operation uint8

const (
	Encrypt Operation = iota
	Decrypt
)

func (op Operation) String() string {
	switch op {
	case Encrypt:
		return "encrypt"
	case Decrypt:
		return "decrypt"
	}
	return fmt.Sprintf("Operation(%d)", uint8(op))
}

// Mode is the block cipher mode of operation.
type Mode uint8

const (
	ECB Mode = iota
	CBC
	CFB
	OFB
	CTR
)

func (m Mode) String() string {
	switch m {
	case ECB:
		return "ecb"
	case CBC:
		return "cbc"
	case CFB:
		return "cfb"
	case OFB:
		return "ofb"
	case CTR:
		return "ctr"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// Chaining reports whether the mode needs an initialization vector.
func (m Mode) Chaining() bool {
	return m != ECB
}

// KeyLen is the size class of the key.
type KeyLen uint8

const (
	Key128 KeyLen = iota
	Key192
	Key256
)

func (k KeyLen) String() string {
	switch k {
	case Key128:
		return "aes-128"
	case Key192:
		return "aes-192"
	case Key256:
		return "aes-256"
	}
	return fmt.Sprintf("KeyLen(%d)", uint8(k))
}

// Words returns the number of 32-bit words of the key.
func (k KeyLen) Words() int {
	switch k {
	case Key128:
		return 4
	case Key192:
		return 6
	case Key256:
		return 8
	}
	return 0
}

// Trigger selects when the engine starts processing a block.
type Trigger uint8

const (
	// Auto starts as soon as a full input block has been loaded.
	Auto Trigger = iota
	// Manual waits for an explicit Start trigger.
	Manual
)

func (t Trigger) String() string {
	switch t {
	case Auto:
		return "auto"
	case Manual:
		return "manual"
	}
	return fmt.Sprintf("Trigger(%d)", uint8(t))
}

// Masking selects the masks of the masked AES implementation.
type Masking uint8

const (
	// MaskingPRNG uses pseudo-random masks from the internal PRNG.
	MaskingPRNG Masking = iota
	// MaskingForceZero forces all masks to zero. For analysis only.
	MaskingForceZero
)

func (m Masking) String() string {
	switch m {
	case MaskingPRNG:
		return "prng"
	case MaskingForceZero:
		return "force-zero"
	}
	return fmt.Sprintf("Masking(%d)", uint8(m))
}

// Transaction is the configuration of one AES transaction.
type Transaction struct {
	Operation Operation
	Mode      Mode
	KeyLen    KeyLen
	Trigger   Trigger
	Masking   Masking
}

// KeyShare is a two-share masked key: the key is Share0 XOR Share1.
// All 8 words of each share are loaded whatever the key length; the words
// beyond KeyLen.Words() are ignored by the engine.
type KeyShare struct {
	Share0 [8]uint32
	Share1 [8]uint32
}

// IV is an initialization vector.
type IV [4]uint32

// Block is one 128-bit block of input or output data.
type Block [4]uint32

// Cmd is a one-shot command issued through the trigger register.
type Cmd uint8

const (
	CmdStart Cmd = iota
	CmdKeyIVDataInClear
	CmdDataOutClear
	CmdPRNGReseed
)

func (c Cmd) String() string {
	switch c {
	case CmdStart:
		return "start"
	case CmdKeyIVDataInClear:
		return "key-iv-data-in-clear"
	case CmdDataOutClear:
		return "data-out-clear"
	case CmdPRNGReseed:
		return "prng-reseed"
	}
	return fmt.Sprintf("Cmd(%d)", uint8(c))
}

// Status is a flag of the status register.
type Status uint8

const (
	StatusIdle Status = iota
	StatusStall
	StatusOutputLost
	StatusOutputValid
	StatusInputReady
	StatusAlertFatalFault
	StatusAlertRecovCtrlUpdateErr
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusStall:
		return "stall"
	case StatusOutputLost:
		return "output-lost"
	case StatusOutputValid:
		return "output-valid"
	case StatusInputReady:
		return "input-ready"
	case StatusAlertFatalFault:
		return "alert-fatal-fault"
	case StatusAlertRecovCtrlUpdateErr:
		return "alert-recov-ctrl-update-err"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Alert is an alert that can be forced through the alert test register.
type Alert uint8

const (
	AlertRecovCtrlUpdateErr Alert = iota
	AlertFatalFault
)

func (a Alert) String() string {
	switch a {
	case AlertRecovCtrlUpdateErr:
		return "recov-ctrl-update-err"
	case AlertFatalFault:
		return "fatal-fault"
	}
	return fmt.Sprintf("Alert(%d)", uint8(a))
}

var (
	// Modes lists all the supported modes.
	Modes = []Mode{ECB, CBC, CFB, OFB, CTR}
	// KeyLens lists all the supported key lengths.
	KeyLens = []KeyLen{Key128, Key192, Key256}
	// Operations lists all the supported operations.
	Operations = []Operation{Encrypt, Decrypt}
	// Cmds lists all the trigger commands.
	Cmds = []Cmd{CmdStart, CmdKeyIVDataInClear, CmdDataOutClear, CmdPRNGReseed}
	// Statuses lists all the status flags.
	Statuses = []Status{
		StatusIdle, StatusStall, StatusOutputLost, StatusOutputValid,
		StatusInputReady, StatusAlertFatalFault, StatusAlertRecovCtrlUpdateErr,
	}
	// Alerts lists all the alerts.
	Alerts = []Alert{AlertRecovCtrlUpdateErr, AlertFatalFault}
)
