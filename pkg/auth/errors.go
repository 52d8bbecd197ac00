package auth

import "errors"

var errMissingBearerToken = errors.New("missing or malformed bearer token")
