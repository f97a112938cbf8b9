package agency

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/golang/glog"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

const (
	minSweep = time.Minute
	maxSweep = time.Hour
)

// sweepInterval returns how often the stale exchanges are looked for. Zero
// TTL means exchanges never expire.
func sweepInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	i := ttl / 4
	switch {
	case i < minSweep:
		return minSweep
	case i > maxSweep:
		return maxSweep
	}
	return i
}

func (a *Agency) scheduleJobs() (s *gocron.Scheduler, err error) {
	defer err2.Handle(&err, "schedule jobs")

	s = gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	if i := sweepInterval(a.Settings.ExchangeTTL()); i > 0 {
		glog.V(1).Infoln("stale exchange sweep every", i)
		try.To1(s.Every(i).Do(a.sweep))
	}
	if a.cfg.BackupPath != "" {
		glog.V(1).Infoln("ledger backup time:", a.cfg.BackupTime)
		try.To1(s.Every(1).Day().At(a.cfg.BackupTime).Do(a.backup))
	}
	return s, nil
}

func (a *Agency) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), a.Settings.Timeout())
	defer cancel()

	if _, err := a.Credentials.AbandonStale(ctx, a.Settings.ExchangeTTL()); err != nil {
		glog.Errorln("stale exchange sweep:", err)
	}
}

func (a *Agency) backup() {
	if err := a.Backup(time.Now()); err != nil {
		glog.Errorln("ledger backup:", err)
	}
}

// Backup copies the ledger file to the backup directory with the date in the
// file name.
func (a *Agency) Backup(t time.Time) (err error) {
	defer err2.Handle(&err, "backup")

	try.To(os.MkdirAll(a.cfg.BackupPath, 0o700))
	name := backupName(a.cfg.BackupPath, a.cfg.LedgerFile, t)
	try.To(a.Ledger.Backup(name))
	glog.V(1).Infoln("ledger backup written:", name)
	return nil
}

func backupName(dir, file string, t time.Time) string {
	base := filepath.Base(file)
	ext := filepath.Ext(base)
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s",
		base[:len(base)-len(ext)], t.UTC().Format("2006-01-02"), ext))
}
