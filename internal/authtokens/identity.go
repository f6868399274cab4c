package authtokens

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

const (
	schemeSeparatorConstant      = "://"
	pathSeparatorConstant        = "/"
	portSeparatorConstant        = ":"
	credentialsSeparatorConstant = "@"
	domainDotConstant            = "."
	localDomainSuffixConstant    = ".local"
)

// Domain extracts the host portion of a URL, stripping ports and qualifying bare hosts.
func Domain(remoteURL string) string {
	remainder := remoteURL
	if schemeIndex := strings.Index(remainder, schemeSeparatorConstant); schemeIndex >= 0 {
		remainder = remainder[schemeIndex+len(schemeSeparatorConstant):]
	}

	domain := remainder
	if pathIndex := strings.Index(remainder, pathSeparatorConstant); pathIndex >= 0 {
		domain = remainder[:pathIndex]
	}

	if portIndex := strings.Index(domain, portSeparatorConstant); portIndex >= 0 {
		domain = domain[:portIndex]
	}

	if !strings.Contains(domain, domainDotConstant) {
		domain += localDomainSuffixConstant
	}

	return domain
}

// UserName extracts the login name embedded in a URL's authority, if any.
func UserName(remoteURL string) string {
	remainder := remoteURL
	if schemeIndex := strings.Index(remainder, schemeSeparatorConstant); schemeIndex >= 0 {
		remainder = remainder[schemeIndex+len(schemeSeparatorConstant):]
	}

	authority := remainder
	if pathIndex := strings.Index(remainder, pathSeparatorConstant); pathIndex >= 0 {
		authority = remainder[:pathIndex]
	}

	if !strings.Contains(authority, credentialsSeparatorConstant) {
		return ""
	}

	// rfind keeps email-style login names intact.
	userName := authority[:strings.LastIndex(authority, credentialsSeparatorConstant)]
	if passwordIndex := strings.Index(userName, portSeparatorConstant); passwordIndex >= 0 {
		userName = userName[:passwordIndex]
	}
	return userName
}

// UserNameHash returns the hex digest keying token and cookie storage for a login name.
func UserNameHash(userName string) string {
	digest := md5.Sum([]byte(userName))
	return hex.EncodeToString(digest[:])
}
