package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"testing"
	"time"
)

func signDevice(deviceID, timestamp, nonce, token string, body []byte) string {
	message := deviceID + ":" + timestamp + ":" + nonce + ":" + string(body)
	mac := hmac.New(sha256.New, []byte(token))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyDeviceSignature_Valid(t *testing.T) {
	token := "deadbeefdeadbeefdeadbeefdeadbeef"
	deviceID := "11111111-1111-1111-1111-111111111111"
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	nonce := "abc123"
	body := []byte(`{"battery":90}`)

	dr := &DeviceRequest{
		DeviceID:    deviceID,
		DeviceToken: token,
		Timestamp:   ts,
		Nonce:       nonce,
		Signature:   signDevice(deviceID, ts, nonce, token, body),
		Body:        body,
	}

	if err := VerifyDeviceSignature(dr, token, 5*time.Minute); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifyDeviceSignature_BadSignature(t *testing.T) {
	token := "deadbeefdeadbeefdeadbeefdeadbeef"
	deviceID := "11111111-1111-1111-1111-111111111111"
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)

	dr := &DeviceRequest{
		DeviceID:    deviceID,
		DeviceToken: token,
		Timestamp:   ts,
		Nonce:       "abc123",
		Signature:   "0000000000000000000000000000000000000000000000000000000000000000",
		Body:        []byte(`{}`),
	}

	if err := VerifyDeviceSignature(dr, token, 5*time.Minute); err != ErrDeviceSignatureBad {
		t.Fatalf("expected ErrDeviceSignatureBad, got %v", err)
	}
}

func TestVerifyDeviceSignature_ClockSkew(t *testing.T) {
	token := "deadbeefdeadbeefdeadbeefdeadbeef"
	deviceID := "11111111-1111-1111-1111-111111111111"
	old := time.Now().Add(-10 * time.Minute)
	ts := strconv.FormatInt(old.UnixMilli(), 10)
	nonce := "abc123"
	body := []byte(`{}`)

	dr := &DeviceRequest{
		DeviceID:    deviceID,
		DeviceToken: token,
		Timestamp:   ts,
		Nonce:       nonce,
		Signature:   signDevice(deviceID, ts, nonce, token, body),
		Body:        body,
	}

	if err := VerifyDeviceSignature(dr, token, 5*time.Minute); err != ErrDeviceTimestampSkew {
		t.Fatalf("expected ErrDeviceTimestampSkew, got %v", err)
	}
}

func TestVerifyDeviceSignature_WrongToken(t *testing.T) {
	deviceID := "11111111-1111-1111-1111-111111111111"
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	nonce := "abc123"
	body := []byte(`{}`)

	dr := &DeviceRequest{
		DeviceID:    deviceID,
		DeviceToken: "presented-token",
		Timestamp:   ts,
		Nonce:       nonce,
		Signature:   signDevice(deviceID, ts, nonce, "presented-token", body),
		Body:        body,
	}

	if err := VerifyDeviceSignature(dr, "stored-token", 5*time.Minute); err != ErrDeviceSignatureBad {
		t.Fatalf("expected ErrDeviceSignatureBad for token mismatch, got %v", err)
	}
}
