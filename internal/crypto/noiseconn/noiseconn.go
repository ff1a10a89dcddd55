// Package noiseconn secures a stream with a Noise XX handshake and framed
// ciphertexts. Each side may attach a small payload to its final handshake
// message; the swarm uses that to exchange identity before any app traffic.
package noiseconn

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/flynn/noise"
)

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2s)

// GenerateKeypair returns a fresh static keypair for this process.
func GenerateKeypair() (noise.DHKey, error) {
	return cipherSuite.GenerateKeypair(rand.Reader)
}

// HandshakeResult is an established secure channel plus what the remote side
// proved and attached during the handshake.
type HandshakeResult struct {
	Conn          *SecureConn
	RemoteStatic  []byte
	RemotePayload []byte
}

// Handshake runs Noise XX over underlying. The responder's payload rides the
// second message, the initiator's the third; both arrive encrypted.
func Handshake(underlying io.ReadWriteCloser, initiator bool, static noise.DHKey, payload []byte) (*HandshakeResult, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeXX,
		Initiator:     initiator,
		StaticKeypair: static,
	})
	if err != nil {
		return nil, err
	}

	var remotePayload []byte
	var readCS, writeCS *noise.CipherState

	if initiator {
		// -> e
		msg, _, _, err := hs.WriteMessage(nil, nil)
		if err != nil {
			return nil, err
		}
		if err := writeHandshakeMsg(underlying, msg); err != nil {
			return nil, err
		}

		// <- e, ee, s, es (+ responder payload)
		in, err := readHandshakeMsg(underlying)
		if err != nil {
			return nil, err
		}
		remotePayload, _, _, err = hs.ReadMessage(nil, in)
		if err != nil {
			return nil, err
		}

		// -> s, se (+ our payload)
		msg, cs1, cs2, err := hs.WriteMessage(nil, payload)
		if err != nil {
			return nil, err
		}
		if err := writeHandshakeMsg(underlying, msg); err != nil {
			return nil, err
		}
		readCS, writeCS = cs2, cs1
	} else {
		// <- e
		in, err := readHandshakeMsg(underlying)
		if err != nil {
			return nil, err
		}
		if _, _, _, err := hs.ReadMessage(nil, in); err != nil {
			return nil, err
		}

		// -> e, ee, s, es (+ our payload)
		msg, _, _, err := hs.WriteMessage(nil, payload)
		if err != nil {
			return nil, err
		}
		if err := writeHandshakeMsg(underlying, msg); err != nil {
			return nil, err
		}

		// <- s, se (+ initiator payload)
		in, err = readHandshakeMsg(underlying)
		if err != nil {
			return nil, err
		}
		var cs1, cs2 *noise.CipherState
		remotePayload, cs1, cs2, err = hs.ReadMessage(nil, in)
		if err != nil {
			return nil, err
		}
		readCS, writeCS = cs1, cs2
	}

	return &HandshakeResult{
		Conn: &SecureConn{
			underlying: underlying,
			readCS:     readCS,
			writeCS:    writeCS,
		},
		RemoteStatic:  hs.PeerStatic(),
		RemotePayload: remotePayload,
	}, nil
}

// SecureConn carries length-prefixed encrypted frames over the underlying
// stream.
type SecureConn struct {
	underlying io.ReadWriteCloser

	readCS  *noise.CipherState
	writeCS *noise.CipherState

	leftover []byte
}

// Read returns plaintext, reading and decrypting a new frame only once the
// previous one is fully consumed.
func (c *SecureConn) Read(p []byte) (int, error) {
	if len(c.leftover) > 0 {
		n := copy(p, c.leftover)
		c.leftover = c.leftover[n:]
		return n, nil
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(c.underlying, lenBuf[:]); err != nil {
		return 0, err
	}
	frameLen := binary.BigEndian.Uint32(lenBuf[:])
	if frameLen == 0 || frameLen > maxFrameLen {
		return 0, fmt.Errorf("invalid frame length %d", frameLen)
	}

	ct := make([]byte, frameLen)
	if _, err := io.ReadFull(c.underlying, ct); err != nil {
		return 0, err
	}

	pt, err := c.readCS.Decrypt(nil, nil, ct)
	if err != nil {
		return 0, err
	}

	n := copy(p, pt)
	if n < len(pt) {
		c.leftover = pt[n:]
	}
	return n, nil
}

// Write encrypts p as a single length-prefixed frame.
func (c *SecureConn) Write(p []byte) (int, error) {
	ct, err := c.writeCS.Encrypt(nil, nil, p)
	if err != nil {
		return 0, err
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(ct)))
	if _, err := c.underlying.Write(lenBuf[:]); err != nil {
		return 0, err
	}
	if _, err := c.underlying.Write(ct); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *SecureConn) Close() error {
	return c.underlying.Close()
}

const maxFrameLen = 1 << 20
