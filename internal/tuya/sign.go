package tuya

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// stringToSign builds the canonical request string:
//
//	METHOD \n SHA256(body) \n <signed headers, none> \n path?query
func stringToSign(method, pathAndQuery string, body []byte) string {
	sum := sha256.Sum256(body)
	return strings.ToUpper(method) + "\n" +
		hex.EncodeToString(sum[:]) + "\n" +
		"\n" +
		pathAndQuery
}

// sign returns the upper-case hex HMAC-SHA256 signature for one request.
// accessToken is empty for the token request itself.
func sign(clientID, secret, accessToken string, tMillis int64, method, pathAndQuery string, body []byte) string {
	var b strings.Builder
	b.WriteString(clientID)
	b.WriteString(accessToken)
	b.WriteString(strconv.FormatInt(tMillis, 10))
	b.WriteString(stringToSign(method, pathAndQuery, body))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(b.String()))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}
