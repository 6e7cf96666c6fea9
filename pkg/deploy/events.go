package deploy

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/elasticbeanstalk/types"
	"github.com/olekukonko/tablewriter"
)

func (d *Deployer) writeEvents(events []ebtypes.EventDescription) error {
	bs, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("marshaling events: %w", err)
	}

	path := filepath.Join(d.workDir, EventsFileName)

	if err := d.fs.WriteFile(path, bs, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	d.Logger.Info("wrote events", "path", path, "count", len(events))

	return nil
}

func (d *Deployer) printEvents(events []ebtypes.EventDescription) {
	if len(events) == 0 {
		return
	}

	table := tablewriter.NewWriter(d.out)
	table.SetHeader([]string{"Date", "Severity", "Message"})
	table.SetAutoWrapText(false)

	for _, e := range events {
		var date string
		if e.EventDate != nil {
			date = e.EventDate.UTC().Format(time.RFC3339)
		}
		table.Append([]string{date, string(e.Severity), aws.ToString(e.Message)})
	}

	table.Render()
}
