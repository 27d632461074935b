package controllers

import "encoding/xml"

// ErrorResponse is the body of every failed request, matching the store's
// <Error><Code/><Message/></Error> document.
type ErrorResponse struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

// Error codes returned by the emulator.
const (
	CodeBlobNotFound         = "BlobNotFound"
	CodeInvalidBlockID       = "InvalidBlockId"
	CodeInvalidBlockList     = "InvalidBlockList"
	CodeInvalidXML           = "InvalidXmlDocument"
	CodeMd5Mismatch          = "Md5Mismatch"
	CodeInvalidRange         = "InvalidRange"
	CodeInvalidQuery         = "InvalidQueryParameterValue"
	CodeAuthenticationFailed = "AuthenticationFailed"
	CodeUnsupportedHTTPVerb  = "UnsupportedHttpVerb"
	CodeOutOfRangeInput      = "OutOfRangeInput"
)
