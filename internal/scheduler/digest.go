package scheduler

import "github.com/rs/zerolog"

// DigestSender pushes a portfolio summary to the authorized user.
type DigestSender interface {
	SendDigest() error
}

// DigestJob sends the morning portfolio digest.
type DigestJob struct {
	sender DigestSender
	log    zerolog.Logger
}

// NewDigestJob creates a new digest job
func NewDigestJob(sender DigestSender, log zerolog.Logger) *DigestJob {
	return &DigestJob{
		sender: sender,
		log:    log.With().Str("job", "morning_digest").Logger(),
	}
}

// Name returns the job name
func (j *DigestJob) Name() string {
	return "morning_digest"
}

// Run sends the digest
func (j *DigestJob) Run() error {
	return j.sender.SendDigest()
}
