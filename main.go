package main

import (
	"log"
	"time"

	"fmtuner/display"
	"fmtuner/tuner"

	"gobot.io/x/gobot"
	"gobot.io/x/gobot/platforms/raspi"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	adaptor := raspi.NewAdaptor()

	tunerConfig := tuner.TEA5767Config{
		Frequency: 93.70,
		Band:      tuner.BandEU,
		Stereo:    true,
		SoftMute:  true,
		Log:       log.Printf,
	}
	radio, err := tuner.NewTEA5767Driver(adaptor, tunerConfig)
	if err != nil {
		log.Fatalln(err)
	}

	lcd, err := display.NewStationDisplayDriver(adaptor)
	if err != nil {
		log.Fatalln(err)
	}

	work := func() {
		if err = lcd.DisplayMessage("Starting the FM receiver"); err != nil {
			log.Fatalln(err)
		}

		if err = radio.SetStation(tunerConfig.Frequency); err != nil {
			log.Fatalln(err)
		}

		gobot.Every(1*time.Second, func() {
			status, err := radio.Status()
			if err != nil {
				log.Fatalln(err)
			}
			if !status.Ready {
				return
			}

			if err = lcd.DisplayStation(status.Frequency, status.Stereo, status.SignalLevel); err != nil {
				log.Fatalln(err)
			}
		})
	}

	robot := gobot.NewRobot("FM Receiver Station demo",
		[]gobot.Connection{adaptor},
		[]gobot.Device{radio, lcd},
		work,
	)

	if err = robot.Start(); err != nil {
		log.Fatalln(err)
	}
}
