package momo

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

type field struct {
	key   string
	value string
}

// canonical joins fields as key=value pairs with '&'. Callers pass the fields
// already in the provider's alphabetical order.
func canonical(fields ...field) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(f.value)
	}
	return b.String()
}

func sign(secret, raw string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) createSignature(req createPayload) string {
	return sign(c.secretKey, canonical(
		field{"accessKey", c.accessKey},
		field{"amount", strconv.FormatInt(req.Amount, 10)},
		field{"extraData", req.ExtraData},
		field{"ipnUrl", req.IPNURL},
		field{"orderId", req.OrderID},
		field{"orderInfo", req.OrderInfo},
		field{"partnerCode", req.PartnerCode},
		field{"redirectUrl", req.RedirectURL},
		field{"requestId", req.RequestID},
		field{"requestType", req.RequestType},
	))
}

func (c *Client) querySignature(orderID, requestID string) string {
	return sign(c.secretKey, canonical(
		field{"accessKey", c.accessKey},
		field{"orderId", orderID},
		field{"partnerCode", c.partnerCode},
		field{"requestId", requestID},
	))
}

func (c *Client) notificationSignature(n Notification) string {
	return sign(c.secretKey, canonical(
		field{"accessKey", c.accessKey},
		field{"amount", strconv.FormatInt(n.Amount, 10)},
		field{"extraData", n.ExtraData},
		field{"message", n.Message},
		field{"orderId", n.OrderID},
		field{"orderInfo", n.OrderInfo},
		field{"orderType", n.OrderType},
		field{"partnerCode", n.PartnerCode},
		field{"payType", n.PayType},
		field{"requestId", n.RequestID},
		field{"responseTime", strconv.FormatInt(n.ResponseTime, 10)},
		field{"resultCode", strconv.Itoa(n.ResultCode)},
		field{"transId", strconv.FormatInt(n.TransID, 10)},
	))
}

// VerifyNotification checks the HMAC carried by an IPN or redirect-return
// payload against the configured secret.
func (c *Client) VerifyNotification(n Notification) bool {
	if c == nil || n.Signature == "" || n.PartnerCode != c.partnerCode {
		return false
	}
	expected := c.notificationSignature(n)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(n.Signature)))
}

// SignNotification returns the signature the provider would attach to n.
func (c *Client) SignNotification(n Notification) string {
	return c.notificationSignature(n)
}
