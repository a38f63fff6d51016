package common

import (
	"io/fs"
)

const (
	AppName    = "xmrun"
	TmpDirBase = "/tmp/"
)

// Log field keys, in the order the console formatter prints them.
const (
	HostName      = "Host"
	TransportName = "Transport"
	CommandName   = "Command"
)

const (
	// FileMode0755 represents rwxr-xr-x
	FileMode0755 fs.FileMode = 0755
	// FileMode0644 represents rw-r--r--
	FileMode0644 fs.FileMode = 0644
	// FileMode0600 represents rw-------
	FileMode0600 fs.FileMode = 0600
)

const (
	DefaultSSHPort    = 22
	DefaultStdoutFile = "remote_cmd_stdout.txt"
	DefaultStderrFile = "remote_cmd_stderr.txt"
)

// Markers of the session protocol spoken with the remote shell.
const (
	DelimiterPrefix = "__XMRUN_STDERR_DELIMITER_"
	DelimiterSuffix = "__"
	TempFilePrefix  = "xmrun_stderr_"
	TempFileSuffix  = ".txt"
	// TokenLength is the number of hex characters taken from a fresh UUID.
	TokenLength = 16
)

// Interactive-authentication banner emitted by some SSH clients (plink) on stdout.
const (
	BannerBeginMarker = "Keyboard-interactive authentication prompts"
	BannerEndMarker   = "End of keyboard-interactive prompts"
)

const (
	// ExitCodeTransportFailure is the sentinel exit code of a failed transport call.
	ExitCodeTransportFailure = -1
	// ExitCodeFailure is what the process exits with when no remote code applies.
	ExitCodeFailure = 1
)

type TransportKind string

const (
	TransportClient TransportKind = "client"
	TransportNative TransportKind = "native"
)

type ClientFlavor string

const (
	ClientOpenSSH ClientFlavor = "openssh"
	ClientPlink   ClientFlavor = "plink"
)

type CredentialSource string

const (
	CredentialNone   CredentialSource = "none"
	CredentialEnv    CredentialSource = "env"
	CredentialFile   CredentialSource = "file"
	CredentialSealed CredentialSource = "sealed"
)

const (
	DefaultPasswordEnv = "XMRUN_PASSWORD"
	SealKeyEnv         = "XMRUN_SEAL_KEY"
	EnvPrefix          = "XMRUN"
)
